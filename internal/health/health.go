// Package health tracks per-provider fetch outcomes over a sliding window so
// the health endpoint can report which upstreams are currently failing.
package health

import (
	"sync"
	"time"
)

// maxAge bounds how long outcome timestamps are retained.
const maxAge = 5 * time.Minute

// Tracker maintains sliding windows of fetch outcome timestamps per provider.
type Tracker struct {
	mu        sync.Mutex
	providers map[string]*outcomes
}

type outcomes struct {
	successTimes []time.Time
	errorTimes   []time.Time
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{providers: make(map[string]*outcomes)}
}

// RecordSuccess records a successful fetch for provider.
func (t *Tracker) RecordSuccess(provider string) {
	t.record(provider, true)
}

// RecordError records a failed fetch for provider.
func (t *Tracker) RecordError(provider string) {
	t.record(provider, false)
}

func (t *Tracker) record(provider string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.providers[provider]
	if !ok {
		o = &outcomes{}
		t.providers[provider] = o
	}
	now := time.Now()
	if success {
		o.successTimes = append(o.successTimes, now)
	} else {
		o.errorTimes = append(o.errorTimes, now)
	}
	o.pruneLocked(now)
}

// ErrorRate returns (errorCount, totalCount) for provider within the window.
func (t *Tracker) ErrorRate(provider string, window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	o, ok := t.providers[provider]
	if !ok {
		return 0, 0
	}
	cutoff := time.Now().Add(-window)
	errCount := countInWindow(o.errorTimes, cutoff)
	successCount := countInWindow(o.successTimes, cutoff)
	return errCount, errCount + successCount
}

// Statuses returns a status string per provider seen so far: "healthy" when
// the window holds at least one success, "unhealthy" when it holds only
// errors, "unknown" when the window is empty.
func (t *Tracker) Statuses(window time.Duration) map[string]string {
	t.mu.Lock()
	names := make([]string, 0, len(t.providers))
	for name := range t.providers {
		names = append(names, name)
	}
	t.mu.Unlock()

	statuses := make(map[string]string, len(names))
	for _, name := range names {
		errCount, total := t.ErrorRate(name, window)
		switch {
		case total == 0:
			statuses[name] = "unknown"
		case errCount == total:
			statuses[name] = "unhealthy"
		default:
			statuses[name] = "healthy"
		}
	}
	return statuses
}

// AllUnhealthy reports whether every tracked provider is failing in the
// window. False when nothing has been recorded yet.
func (t *Tracker) AllUnhealthy(window time.Duration) bool {
	statuses := t.Statuses(window)
	if len(statuses) == 0 {
		return false
	}
	sawUnhealthy := false
	for _, s := range statuses {
		switch s {
		case "healthy":
			return false
		case "unhealthy":
			sawUnhealthy = true
		}
	}
	return sawUnhealthy
}

// Reset clears all recorded outcomes. For tests only.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.providers = make(map[string]*outcomes)
}

func countInWindow(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Caller holds the mutex.
func (o *outcomes) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&o.successTimes)
	prune(&o.errorTimes)
}
