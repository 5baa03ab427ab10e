package service

import "sync"

// stampedeTracker counts concurrent cache misses per key. A count above one
// while a miss is being resolved means multiple requests raced past the cache
// for the same key.
type stampedeTracker struct {
	mu           sync.Mutex
	activeMisses map[string]int
}

func newStampedeTracker() *stampedeTracker {
	return &stampedeTracker{activeMisses: make(map[string]int)}
}

// RecordMiss increments the concurrent miss count for key and returns it.
// Callers defer RecordResolved once the upstream fetch completes.
func (st *stampedeTracker) RecordMiss(key string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.activeMisses[key]++
	return st.activeMisses[key]
}

// RecordResolved decrements the concurrent miss count for key.
func (st *stampedeTracker) RecordResolved(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if count, ok := st.activeMisses[key]; ok && count > 0 {
		st.activeMisses[key]--
		if st.activeMisses[key] == 0 {
			delete(st.activeMisses, key)
		}
	}
}
