package service

import (
	"context"
	"sync"
	"time"
)

// inFlight tracks one upstream fetch that multiple callers may wait on. The
// done channel closes after result and err are written.
type inFlight[T any] struct {
	done   chan struct{}
	result T
	err    error
}

// coalescer deduplicates concurrent fetches for the same key: the first caller
// executes, later callers block on the leader's result instead of issuing
// their own upstream calls.
type coalescer[T any] struct {
	mu       sync.Mutex
	requests map[string]*inFlight[T]
	timeout  time.Duration
}

func newCoalescer[T any](timeout time.Duration) *coalescer[T] {
	return &coalescer[T]{
		requests: make(map[string]*inFlight[T]),
		timeout:  timeout,
	}
}

// Do runs fn for key unless a fetch for that key is already in flight, in
// which case it waits for the leader. The bool reports whether this caller
// coalesced onto an existing fetch. Waiters give up on context cancellation
// or after the coalescer timeout; the leader's fetch is not interrupted.
// A nil coalescer runs fn directly, so every caller fetches independently.
func (c *coalescer[T]) Do(ctx context.Context, key string, fn func() (T, error)) (T, bool, error) {
	if c == nil {
		result, err := fn()
		return result, false, err
	}

	c.mu.Lock()
	if req, ok := c.requests[key]; ok {
		c.mu.Unlock()

		waitCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		select {
		case <-req.done:
			return req.result, true, req.err
		case <-waitCtx.Done():
			var zero T
			return zero, true, waitCtx.Err()
		}
	}

	req := &inFlight[T]{done: make(chan struct{})}
	c.requests[key] = req
	c.mu.Unlock()

	req.result, req.err = fn()

	// Delete before close: callers arriving after completion start a fresh
	// fetch instead of reading a finished entry.
	c.mu.Lock()
	delete(c.requests, key)
	c.mu.Unlock()
	close(req.done)

	return req.result, false, req.err
}
