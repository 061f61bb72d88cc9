// Package cache implements C11: a bounded in-process cache with LRU
// eviction and per-entry TTL, used for hot search responses
// (pkg/retrieval). It wraps
// github.com/hashicorp/golang-lru/v2 with the TTL layer and async-safe lock
// SPEC_FULL.md §5 calls for ("all mutations take an async-safe lock... its
// get_stats accessor is also lock-protected").
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Stats are the lock-protected counters exposed by GetStats.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Expired   uint64
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a generic, bounded, TTL-aware LRU cache safe for concurrent use.
type Cache[K comparable, V any] struct {
	mu    sync.Mutex
	lru   *lru.Cache[K, entry[V]]
	ttl   time.Duration
	stats Stats
}

// New creates a Cache with the given capacity and default TTL. A TTL of
// zero disables expiration (entries live until evicted by capacity).
func New[K comparable, V any](capacity int, ttl time.Duration) (*Cache[K, V], error) {
	if capacity <= 0 {
		capacity = 1
	}
	c := &Cache[K, V]{ttl: ttl}
	inner, err := lru.NewWithEvict[K, entry[V]](capacity, func(_ K, _ entry[V]) {
		c.stats.Evictions++
	})
	if err != nil {
		return nil, err
	}
	c.lru = inner
	return c, nil
}

// Get returns the cached value for key if present and not expired. A hit on
// an expired entry counts as a miss and removes the entry (lazy expiry).
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.lru.Remove(key)
		c.stats.Misses++
		c.stats.Expired++
		var zero V
		return zero, false
	}
	c.stats.Hits++
	return e.value, true
}

// Set inserts or replaces key's value using the cache's default TTL.
func (c *Cache[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.ttl)
}

// SetWithTTL inserts or replaces key's value with a per-entry TTL override.
func (c *Cache[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry[V]{value: value, expiresAt: expiresAt})
}

// Remove evicts key if present.
func (c *Cache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Len returns the current number of entries (including not-yet-lazily-expired ones).
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// GetStats returns a snapshot of the cache's hit/miss/eviction counters.
func (c *Cache[K, V]) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
