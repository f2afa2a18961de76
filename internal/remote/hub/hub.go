// Package hub fans store writes out to path subscribers. A single goroutine
// owns the subscriber set; writers publish changed paths and the hub turns
// them into per-child events using a snapshot reader supplied by the store.
package hub

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"github.com/dmitrijs2005/chatsync/internal/remote/tree"
)

// Snapshot reads the current value at path. found is false for absent nodes.
type Snapshot func(ctx context.Context, path string) (value json.RawMessage, found bool, err error)

const subscriberBuffer = 64

type subscriber struct {
	path string
	send chan remote.Event
}

type Hub struct {
	subs       map[*subscriber]struct{}
	register   chan *subscriber
	unregister chan *subscriber
	publish    chan []string
	done       chan struct{}
	snapshot   Snapshot
	log        logging.Logger
}

func New(snapshot Snapshot, log logging.Logger) *Hub {
	return &Hub{
		subs:       make(map[*subscriber]struct{}),
		register:   make(chan *subscriber),
		unregister: make(chan *subscriber),
		publish:    make(chan []string, 256),
		done:       make(chan struct{}),
		snapshot:   snapshot,
		log:        log.With("component", "hub"),
	}
}

// Run serves registrations and publications until ctx ends, then closes every
// subscriber stream.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for s := range h.subs {
			close(s.send)
			delete(h.subs, s)
		}
	}()

	for {
		select {
		case s := <-h.register:
			h.subs[s] = struct{}{}
		case s := <-h.unregister:
			if _, ok := h.subs[s]; ok {
				delete(h.subs, s)
				close(s.send)
			}
		case paths := <-h.publish:
			h.fanOut(ctx, paths)
		case <-ctx.Done():
			return
		}
	}
}

// Subscribe registers a subscriber for children of path.
func (h *Hub) Subscribe(ctx context.Context, path string) (*remote.Subscription, error) {
	s := &subscriber{path: remote.CleanPath(path), send: make(chan remote.Event, subscriberBuffer)}

	select {
	case h.register <- s:
	case <-h.done:
		return remote.EmptySubscription(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		<-subCtx.Done()
		select {
		case h.unregister <- s:
		case <-h.done:
		}
	}()

	return remote.NewSubscription(s.send, cancel), nil
}

// Publish queues changed paths. It never waits for delivery.
func (h *Hub) Publish(paths ...string) {
	if len(paths) == 0 {
		return
	}
	select {
	case h.publish <- paths:
	case <-h.done:
	}
}

func (h *Hub) fanOut(ctx context.Context, paths []string) {
	for s := range h.subs {
		for _, ev := range h.eventsFor(ctx, s.path, paths) {
			select {
			case s.send <- ev:
			default:
				h.log.Warn(ctx, "dropping slow subscriber", "path", s.path)
				close(s.send)
				delete(h.subs, s)
			}
			if _, alive := h.subs[s]; !alive {
				break
			}
		}
	}
}

func (h *Hub) eventsFor(ctx context.Context, subPath string, changed []string) []remote.Event {
	keys := make([]string, 0, len(changed))
	seen := make(map[string]struct{}, len(changed))
	resync := false

	for _, p := range changed {
		p = remote.CleanPath(p)
		if key, ok := remote.ChildKey(p, subPath); ok {
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				keys = append(keys, key)
			}
			continue
		}
		if p == subPath || remote.IsUnder(subPath, p) {
			resync = true
		}
	}

	if resync {
		return h.resync(ctx, subPath)
	}

	events := make([]remote.Event, 0, len(keys))
	for _, key := range keys {
		value, found, err := h.snapshot(ctx, remote.Join(subPath, key))
		if err != nil {
			h.log.Warn(ctx, "snapshot failed", "path", subPath, "key", key, "error", err)
			continue
		}
		if found {
			events = append(events, remote.Event{Kind: remote.EventInsertOrUpdate, Key: key, Value: value})
		} else {
			events = append(events, remote.Event{Kind: remote.EventDelete, Key: key})
		}
	}
	return events
}

func (h *Hub) resync(ctx context.Context, subPath string) []remote.Event {
	value, found, err := h.snapshot(ctx, subPath)
	if err != nil {
		h.log.Warn(ctx, "snapshot failed", "path", subPath, "error", err)
		return nil
	}
	if !found {
		return nil
	}

	var t tree.Tree
	if err := t.SetRaw("", value); err != nil {
		h.log.Warn(ctx, "undecodable node", "path", subPath, "error", err)
		return nil
	}

	var events []remote.Event
	for _, key := range t.Children("") {
		raw, ok, err := t.GetRaw(key)
		if err != nil || !ok {
			continue
		}
		events = append(events, remote.Event{Kind: remote.EventInsertOrUpdate, Key: key, Value: raw})
	}
	return events
}
