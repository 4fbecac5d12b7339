package dataset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrNoLoader is returned when a Lazy snapshot has no load function.
var ErrNoLoader = errors.New("dataset: loader not configured")

// LoadFunc builds a fresh immutable value.
type LoadFunc[T any] func(ctx context.Context) (T, error)

// Lazy holds an immutable value that is built on first access and then shared
// by every reader for the lifetime of the process. Failed loads are not
// cached; the next caller retries. Replace swaps the whole value atomically.
type Lazy[T any] struct {
	load LoadFunc[T]

	current atomic.Pointer[T]
	mu      sync.Mutex
	pending *loadCall[T]
}

type loadCall[T any] struct {
	done chan struct{}
	val  *T
	err  error
}

// NewLazy returns a snapshot that uses load to build its value.
func NewLazy[T any](load LoadFunc[T]) *Lazy[T] {
	return &Lazy[T]{load: load}
}

// Get returns the resident value, loading it if needed. Concurrent callers
// during the first load wait on the same in-flight load.
func (l *Lazy[T]) Get(ctx context.Context) (T, error) {
	if v := l.current.Load(); v != nil {
		return *v, nil
	}

	l.mu.Lock()
	if v := l.current.Load(); v != nil {
		l.mu.Unlock()
		return *v, nil
	}
	call := l.pending
	if call == nil {
		call = &loadCall[T]{done: make(chan struct{})}
		l.pending = call
		go l.run(call)
	}
	l.mu.Unlock()

	select {
	case <-call.done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	if call.err != nil {
		var zero T
		return zero, call.err
	}
	return *call.val, nil
}

// run executes the load detached from any single caller so that an aborted
// request does not poison the result other callers are waiting on.
func (l *Lazy[T]) run(call *loadCall[T]) {
	defer close(call.done)
	if l.load == nil {
		call.err = ErrNoLoader
	} else {
		v, err := l.load(context.Background())
		if err != nil {
			call.err = err
		} else {
			call.val = &v
		}
	}

	l.mu.Lock()
	if call.err == nil && !l.current.CompareAndSwap(nil, call.val) {
		// A Replace landed while loading; the explicit value wins.
		call.val = l.current.Load()
	}
	l.pending = nil
	l.mu.Unlock()
}

// Loaded reports whether a value is resident.
func (l *Lazy[T]) Loaded() bool {
	return l.current.Load() != nil
}

// Replace installs v as the resident value.
func (l *Lazy[T]) Replace(v T) {
	l.current.Store(&v)
}

// Reload builds a fresh value and swaps it in. On error the previous value
// stays resident.
func (l *Lazy[T]) Reload(ctx context.Context) (T, error) {
	var zero T
	if l.load == nil {
		return zero, ErrNoLoader
	}
	v, err := l.load(ctx)
	if err != nil {
		return zero, err
	}
	l.Replace(v)
	return v, nil
}
