package client

import (
	"sync"
	"time"
)

// defaultCacheTTL mirrors the server's standard weather TTL.
const defaultCacheTTL = 15 * time.Minute

// memoCache is the client-side mirror of the server cache: same key scheme,
// one TTL, expiry checked lazily at read time. It saves a round trip for
// repeated lookups of the same ZIP, not correctness; the server cache remains
// authoritative.
type memoCache struct {
	mu      sync.Mutex
	entries map[string]memoEntry
	ttl     time.Duration
	now     func() time.Time
}

type memoEntry struct {
	value     any
	expiresAt time.Time
}

func newMemoCache(ttl time.Duration) *memoCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &memoCache{
		entries: make(map[string]memoEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *memoCache) get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *memoCache) set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}
