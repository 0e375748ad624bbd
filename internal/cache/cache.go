package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// entry pairs a cached payload with its expiry. Expiry is checked on read;
// there is no background sweeper, the LRU capacity bounds memory instead.
type entry struct {
	payload   interface{}
	expiresAt time.Time
}

// FetchFunc produces a fresh value for a key on cache miss.
type FetchFunc func(ctx context.Context) (interface{}, error)

// Cache is a capacity-bounded cache-aside store with per-entry TTLs.
// Concurrent misses for the same key are collapsed into a single fetch.
type Cache struct {
	entries *lru.Cache[string, entry]
	group   singleflight.Group
	now     func() time.Time
}

// New creates a cache holding at most size entries.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = 4096
	}
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries, now: time.Now}, nil
}

// GetOrFetch returns the live cached value for key, or invokes fetch, stores
// the result with expiresAt = now + ttl, and returns it. An expired entry is
// treated as absent and refreshed synchronously by the caller.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (interface{}, error) {
	if cached, ok := c.entries.Get(key); ok && c.now().Before(cached.expiresAt) {
		return cached.payload, nil
	}

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: a concurrent fetch may have landed.
		if cached, ok := c.entries.Get(key); ok && c.now().Before(cached.expiresAt) {
			return cached.payload, nil
		}
		payload, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.entries.Add(key, entry{payload: payload, expiresAt: c.now().Add(ttl)})
		return payload, nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Invalidate drops a key regardless of its TTL.
func (c *Cache) Invalidate(key string) {
	c.entries.Remove(key)
}

// Len reports the number of resident entries, expired ones included.
func (c *Cache) Len() int {
	return c.entries.Len()
}
