// Package remote defines the contract the client engine consumes from the
// real-time record store, plus the subscription handle and path layout shared
// by every backend.
//
// The store is a JSON tree addressed by slash-separated paths. Writing a path
// replaces that node and its descendants; reading an ancestor returns the
// assembled subtree.
package remote

import (
	"context"
	"encoding/json"
	"sync"
)

// Store is the remote record store.
type Store interface {
	// Put replaces the node at path.
	Put(ctx context.Context, path string, value json.RawMessage) error

	// Update writes several paths atomically.
	Update(ctx context.Context, values map[string]json.RawMessage) error

	// Get returns the node at path or common.ErrNotFound.
	Get(ctx context.Context, path string) (json.RawMessage, error)

	// Delete removes the node at path. Deleting an absent node is not an error.
	Delete(ctx context.Context, path string) error

	// ListChildren returns the direct children of path sorted by key. An
	// absent node has no children.
	ListChildren(ctx context.Context, path string) ([]Child, error)

	// Subscribe streams child changes under path until the subscription is
	// closed or ctx ends.
	Subscribe(ctx context.Context, path string) (*Subscription, error)

	Ping(ctx context.Context) error
}

// Child is one key/value pair under a listed node.
type Child struct {
	Key   string
	Value json.RawMessage
}

// EventKind is the type of a subscription event.
type EventKind string

const (
	EventInsertOrUpdate EventKind = "InsertOrUpdate"
	EventDelete         EventKind = "Delete"
)

// Event reports a change of one child of the subscribed path. Value is nil
// for EventDelete.
type Event struct {
	Kind  EventKind
	Key   string
	Value json.RawMessage
}

// Subscription is a cancellable stream of events. The channel is closed when
// the stream ends, whether by Close, context cancellation or backend failure.
type Subscription struct {
	events <-chan Event
	cancel context.CancelFunc
	once   sync.Once
}

// NewSubscription wraps an event channel and the function that stops its
// producer.
func NewSubscription(events <-chan Event, cancel context.CancelFunc) *Subscription {
	return &Subscription{events: events, cancel: cancel}
}

// Events returns the receive side of the stream.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close requests disposal and returns immediately. The producer may deliver
// a few more events before the channel closes; consumers discard them.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// EmptySubscription returns a subscription whose stream is already closed.
func EmptySubscription() *Subscription {
	ch := make(chan Event)
	close(ch)
	return NewSubscription(ch, func() {})
}
