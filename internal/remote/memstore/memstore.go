// Package memstore is an in-process remote.Store. It backs the CLI's demo
// mode and the engine tests.
package memstore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dmitrijs2005/chatsync/internal/common"
	"github.com/dmitrijs2005/chatsync/internal/logging"
	"github.com/dmitrijs2005/chatsync/internal/remote"
	"github.com/dmitrijs2005/chatsync/internal/remote/hub"
	"github.com/dmitrijs2005/chatsync/internal/remote/tree"
)

type Store struct {
	mu     sync.RWMutex
	data   tree.Tree
	hub    *hub.Hub
	cancel context.CancelFunc
}

var _ remote.Store = (*Store)(nil)

// New returns an empty store with its fan-out loop running. Call Close to
// stop it.
func New(log logging.Logger) *Store {
	s := &Store{}
	s.hub = hub.New(s.snapshot, log.With("store", "memory"))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.hub.Run(ctx)
	return s
}

func (s *Store) Close() error {
	s.cancel()
	return nil
}

func (s *Store) snapshot(ctx context.Context, path string) (json.RawMessage, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetRaw(path)
}

func (s *Store) Put(ctx context.Context, path string, value json.RawMessage) error {
	return s.Update(ctx, map[string]json.RawMessage{path: value})
}

func (s *Store) Update(ctx context.Context, values map[string]json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	decoded := make(map[string]any, len(values))
	for p, raw := range values {
		v, err := tree.Decode(raw)
		if err != nil {
			return err
		}
		decoded[remote.CleanPath(p)] = v
	}
	paths := remote.SortedByDepth(decoded)

	s.mu.Lock()
	for _, p := range paths {
		s.data.Set(p, decoded[p])
	}
	s.mu.Unlock()

	s.hub.Publish(paths...)
	return nil
}

func (s *Store) Get(ctx context.Context, path string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, ok, err := s.snapshot(ctx, path)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, common.ErrNotFound
	}
	return raw, nil
}

func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.data.Delete(path)
	s.mu.Unlock()

	s.hub.Publish(remote.CleanPath(path))
	return nil
}

func (s *Store) ListChildren(ctx context.Context, path string) ([]remote.Child, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.data.Children(path)
	children := make([]remote.Child, 0, len(keys))
	for _, k := range keys {
		raw, ok, err := s.data.GetRaw(remote.Join(path, k))
		if err != nil {
			return nil, err
		}
		if ok {
			children = append(children, remote.Child{Key: k, Value: raw})
		}
	}
	return children, nil
}

func (s *Store) Subscribe(ctx context.Context, path string) (*remote.Subscription, error) {
	return s.hub.Subscribe(ctx, path)
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}
