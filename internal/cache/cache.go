package cache

import (
	"context"
	"sync"
	"time"
)

// sweepThreshold is the entry count above which Set scans the whole map and
// drops expired entries. Keeps the process-wide cache bounded without a
// background goroutine.
const sweepThreshold = 100

// Cache is the shared weather cache contract. Values are opaque JSON bytes so
// one cache can hold single-source results, triple-check arrays, resolved
// coordinates, and IP lookups under their own composite keys.
// Get returns (nil, false, nil) on miss or expiry; Set stores with a TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type cacheEntry struct {
	value    []byte
	storedAt time.Time
	ttl      time.Duration
}

// InMemoryCache implements Cache with a map guarded by a mutex. Expired
// entries are removed lazily on access, plus a bulk sweep whenever the map
// grows past sweepThreshold.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

// NewInMemoryCache creates an empty in-memory cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

// Get retrieves the cached value for key if present and not older than its
// TTL. Expired entries are deleted on access.
func (c *InMemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().Sub(entry.storedAt) > entry.ttl {
		delete(c.data, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key with the given TTL, overwriting any previous
// entry. When the map exceeds sweepThreshold entries afterwards, all expired
// entries are removed in one pass.
func (c *InMemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = cacheEntry{value: value, storedAt: c.now(), ttl: ttl}

	if len(c.data) > sweepThreshold {
		now := c.now()
		for k, e := range c.data {
			if now.Sub(e.storedAt) > e.ttl {
				delete(c.data, k)
			}
		}
	}
	return nil
}

// Len returns the current entry count. Used by tests and the health handler.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
