// Package cache provides an in-process TTL cache used by the feature
// engine and the market data layer to avoid refetching or recomputing
// hot series inside a scan cycle.
package cache

import (
	"sync"
	"time"
)

// Stats summarizes cache performance counters.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Entries     int64   `json:"entries"`
	HitRatio    float64 `json:"hit_ratio"`
	CleanupRuns int64   `json:"cleanup_runs"`
}

// TTLCache is a bounded in-memory cache with per-entry expiration and
// LRU eviction when full.
type TTLCache struct {
	mu         sync.RWMutex
	entries    map[string]*cacheEntry
	maxEntries int64
	stats      struct {
		hits        int64
		misses      int64
		evictions   int64
		cleanupRuns int64
	}

	stopCh   chan struct{}
	stopOnce sync.Once
}

type cacheEntry struct {
	value    any
	expires  time.Time
	accessed time.Time
}

// NewTTLCache creates a cache bounded to maxEntries and starts its
// background expiry sweep. Call Stop when done.
func NewTTLCache(maxEntries int64) *TTLCache {
	c := &TTLCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		stopCh:     make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get retrieves a value if present and not expired.
func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists || time.Now().After(entry.expires) {
		c.stats.misses++
		return nil, false
	}

	entry.accessed = time.Now()
	c.stats.hits++
	return entry.value, true
}

// Set stores a value with the given TTL, evicting the least recently
// accessed entry when the cache is full.
func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && int64(len(c.entries)) >= c.maxEntries {
		c.evictLRU()
	}

	now := time.Now()
	c.entries[key] = &cacheEntry{
		value:    value,
		expires:  now.Add(ttl),
		accessed: now,
	}
}

// Stats returns a snapshot of the cache counters.
func (c *TTLCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	total := c.stats.hits + c.stats.misses
	ratio := 0.0
	if total > 0 {
		ratio = float64(c.stats.hits) / float64(total)
	}
	return Stats{
		Hits:        c.stats.hits,
		Misses:      c.stats.misses,
		Evictions:   c.stats.evictions,
		Entries:     int64(len(c.entries)),
		HitRatio:    ratio,
		CleanupRuns: c.stats.cleanupRuns,
	}
}

// Clear removes all entries and resets counters.
func (c *TTLCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.stats.hits, c.stats.misses = 0, 0
	c.stats.evictions, c.stats.cleanupRuns = 0, 0
}

// Stop shuts down the background sweep. Safe to call more than once.
func (c *TTLCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// evictLRU removes the least recently accessed entry. Caller must hold
// the write lock.
func (c *TTLCache) evictLRU() {
	if len(c.entries) == 0 {
		return
	}

	oldestKey := ""
	oldestTime := time.Now().Add(time.Hour)
	for key, entry := range c.entries {
		if entry.accessed.Before(oldestTime) {
			oldestTime = entry.accessed
			oldestKey = key
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.stats.evictions++
	}
}

func (c *TTLCache) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *TTLCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
		}
	}
	c.stats.cleanupRuns++
}
