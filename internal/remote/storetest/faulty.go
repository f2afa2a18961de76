package storetest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dmitrijs2005/chatsync/internal/remote"
)

// Faulty wraps a store and injects failures or stalls into its operations.
type Faulty struct {
	remote.Store

	mu            sync.Mutex
	writeErr      error
	readErr       error
	subscribeErr  error
	gate          chan struct{}
	writtenPaths  []string
	failWritePath map[string]error
}

func NewFaulty(s remote.Store) *Faulty {
	return &Faulty{Store: s, failWritePath: map[string]error{}}
}

// FailWrites makes Put, Update and Delete return err. nil restores them.
func (f *Faulty) FailWrites(err error) {
	f.mu.Lock()
	f.writeErr = err
	f.mu.Unlock()
}

// FailWritesTo fails writes that touch path.
func (f *Faulty) FailWritesTo(path string, err error) {
	f.mu.Lock()
	f.failWritePath[path] = err
	f.mu.Unlock()
}

// FailReads makes Get and ListChildren return err.
func (f *Faulty) FailReads(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

func (f *Faulty) FailSubscribe(err error) {
	f.mu.Lock()
	f.subscribeErr = err
	f.mu.Unlock()
}

// HoldWrites blocks writes until the returned release is called or the
// write's context ends.
func (f *Faulty) HoldWrites() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Writes returns the paths written so far, successful or not.
func (f *Faulty) Writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.writtenPaths...)
}

func (f *Faulty) beforeWrite(ctx context.Context, paths ...string) error {
	f.mu.Lock()
	f.writtenPaths = append(f.writtenPaths, paths...)
	gate, err := f.gate, f.writeErr
	if err == nil {
		for _, p := range paths {
			if e, ok := f.failWritePath[remote.CleanPath(p)]; ok {
				err = e
				break
			}
		}
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *Faulty) Put(ctx context.Context, path string, value json.RawMessage) error {
	if err := f.beforeWrite(ctx, path); err != nil {
		return err
	}
	return f.Store.Put(ctx, path, value)
}

func (f *Faulty) Update(ctx context.Context, values map[string]json.RawMessage) error {
	if err := f.beforeWrite(ctx, remote.SortedByDepth(values)...); err != nil {
		return err
	}
	return f.Store.Update(ctx, values)
}

func (f *Faulty) Delete(ctx context.Context, path string) error {
	if err := f.beforeWrite(ctx, path); err != nil {
		return err
	}
	return f.Store.Delete(ctx, path)
}

func (f *Faulty) Get(ctx context.Context, path string) (json.RawMessage, error) {
	f.mu.Lock()
	err := f.readErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, path)
}

func (f *Faulty) ListChildren(ctx context.Context, path string) ([]remote.Child, error) {
	f.mu.Lock()
	err := f.readErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.ListChildren(ctx, path)
}

func (f *Faulty) Subscribe(ctx context.Context, path string) (*remote.Subscription, error) {
	f.mu.Lock()
	err := f.subscribeErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Subscribe(ctx, path)
}
