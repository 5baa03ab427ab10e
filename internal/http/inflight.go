package http

import (
	"context"
	"sync/atomic"
	"time"
)

// InFlightTracker counts requests currently inside the handler chain. The
// shutdown sequence drains on it: srv.Shutdown stops new connections, the
// tracker reports when the last accepted request has finished. Constructed in
// main and handed to MetricsMiddleware; there is no package-level instance.
type InFlightTracker struct {
	active atomic.Int64
}

// NewInFlightTracker returns a tracker with no active requests.
func NewInFlightTracker() *InFlightTracker {
	return &InFlightTracker{}
}

// Begin marks one request entering the handler chain.
func (t *InFlightTracker) Begin() {
	t.active.Add(1)
}

// End marks one request leaving the handler chain.
func (t *InFlightTracker) End() {
	t.active.Add(-1)
}

// Active returns the number of requests currently being served.
func (t *InFlightTracker) Active() int64 {
	return t.active.Load()
}

// Drain blocks until no requests are active, re-checking every checkInterval,
// or until ctx is done. Requests that outlive ctx keep running; Drain just
// stops waiting for them.
func (t *InFlightTracker) Drain(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		if t.active.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
