// Package infra provides shared infrastructure used by the query API:
// a TTL cache for computed responses.
package infra

import (
	"context"
	"sync"
	"time"
)

// CacheEntry holds a cached value with expiration.
type CacheEntry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// Cache is a thread-safe in-memory cache with TTL. A zero or negative TTL
// disables caching: Set is a no-op and Get always misses.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[string]CacheEntry[V]
	ttl     time.Duration
	now     func() time.Time
	gen     uint64 // bumped by Flush
}

// NewCache creates a cache with the given TTL.
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]CacheEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.ExpiresAt) {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Set stores value under key for the cache TTL.
func (c *Cache[V]) Set(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = CacheEntry[V]{Value: value, ExpiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *Cache[V]) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// setIfGen stores value only if no Flush happened since gen was read.
func (c *Cache[V]) setIfGen(key string, value V, gen uint64) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	if c.gen == gen {
		c.entries[key] = CacheEntry[V]{Value: value, ExpiresAt: c.now().Add(c.ttl)}
	}
	c.mu.Unlock()
}

// GetOrLoad returns the cached value for key, or calls load and caches its
// result on success. hit reports whether the value came from the cache.
// Concurrent misses may each call load. A result loaded across a Flush is
// returned but not cached.
func (c *Cache[V]) GetOrLoad(key string, load func() (V, error)) (v V, hit bool, err error) {
	gen := c.generation()
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	v, err = load()
	if err != nil {
		return v, false, err
	}
	c.setIfGen(key, v, gen)
	return v, false, nil
}

// Flush removes all entries. Called after each ingestion pass so queries see
// fresh rows.
func (c *Cache[V]) Flush() {
	c.mu.Lock()
	clear(c.entries)
	c.gen++
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Cleanup removes expired entries.
func (c *Cache[V]) Cleanup() {
	c.mu.Lock()
	now := c.now()
	for k, v := range c.entries {
		if !now.Before(v.ExpiresAt) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// RunJanitor calls Cleanup every interval until ctx is done.
func (c *Cache[V]) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.Cleanup()
		}
	}
}
