// Package infra provides shared infrastructure components used across
// the application: caching and rate limiting of collaborator calls.
package infra

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// --- Simple in-memory cache ---

// CacheEntry holds a cached value with expiration.
type CacheEntry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// Cache is a thread-safe in-memory cache with TTL. Expired entries are
// swept on Set at most once per TTL, so the map stays bounded by what was
// written within roughly two TTLs.
type Cache[V any] struct {
	mu        sync.RWMutex
	entries   map[string]CacheEntry[V]
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

// NewCache creates a new cache with the given TTL.
func NewCache[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]CacheEntry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a value from the cache. Returns the zero value, false if not
// found or expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.ExpiresAt) {
		var zero V
		return zero, false
	}
	return entry.Value, true
}

// Set stores a value in the cache.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if now.Sub(c.lastSweep) >= c.ttl {
		for k, v := range c.entries {
			if now.After(v.ExpiresAt) {
				delete(c.entries, k)
			}
		}
		c.lastSweep = now
	}
	c.entries[key] = CacheEntry[V]{
		Value:     value,
		ExpiresAt: now.Add(c.ttl),
	}
}

// --- Rate limiter ---

// NewRateLimiter returns a token-bucket limiter allowing perSecond calls with
// the given burst. A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
