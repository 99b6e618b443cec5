package provider

import (
	"sync"
	"time"
)

// entry is one cached value with an absolute expiration and the cache
// generation it was written under.
type entry struct {
	value      interface{}
	expiration time.Time
	version    int64
}

// CacheConfig controls a TTLCache's default lifetime. Adapted from the
// teacher's infrastructure/cache.CacheConfig.
type CacheConfig struct {
	DefaultTTL time.Duration
}

// TTLCache is a process-wide, versioned, TTL-based cache, adapted from
// the teacher's infrastructure/cache.Cache: entries are immutable
// snapshots; invalidation replaces the generation atomically rather
// than mutating entries in place (spec.md §5's "Cache entries are
// immutable snapshots; invalidation replaces the entry atomically").
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	cfg     CacheConfig
	version int64

	hits, misses int64
}

// NewTTLCache builds a cache with the given default TTL.
func NewTTLCache(cfg CacheConfig) *TTLCache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	return &TTLCache{entries: make(map[string]*entry), cfg: cfg}
}

// Get returns the cached value for key, reporting whether it was
// present and unexpired.
func (c *TTLCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiration) {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.value, true
}

// Set stores value under key with ttl, falling back to the configured
// default when ttl is zero or negative. Callers needing a short TTL on
// empty results (spec.md §4.1) pass that short positive ttl here.
func (c *TTLCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.cfg.DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: value, expiration: time.Now().Add(ttl), version: c.version}
}

// Invalidate removes a single key.
func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// InvalidateAll bumps the generation and clears all entries atomically.
func (c *TTLCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version++
	c.entries = make(map[string]*entry)
}

// Size returns the number of live (not necessarily unexpired) entries.
func (c *TTLCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// HitRatio returns hits / (hits + misses), or 0 if there have been no
// lookups yet.
func (c *TTLCache) HitRatio() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total)
}

// HitsAndMisses returns the raw lifetime counters, for metrics export.
func (c *TTLCache) HitsAndMisses() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}
