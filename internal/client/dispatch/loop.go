// Package dispatch provides the owner loop of the client: the goroutine on
// which every mutation of the in-memory chat and message lists runs.
// Background work marshals its results back with Post or Do.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/chatsync/internal/logging"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("dispatch loop stopped")

// Loop executes posted functions one at a time, in order.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
	log  logging.Logger
}

func New(log logging.Logger) *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
		log:  log.With("component", "dispatch"),
	}
}

// Run serves the queue until ctx ends. Functions still queued at that point
// are dropped.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.call(ctx, fn)
			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-l.wake:
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) call(ctx context.Context, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			l.log.Error(ctx, "dispatched function panicked", "panic", fmt.Sprint(p))
		}
	}()
	fn()
}

// Post queues fn without waiting. It reports false when the loop has
// stopped and fn will never run.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it to finish. It must not be called
// from a function already running on the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		// the loop may have run fn just before exiting
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
