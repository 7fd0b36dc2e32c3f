package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheSetGet(t *testing.T) {
	c := NewTTLCache(10)
	defer c.Stop()

	c.Set("a", 42, time.Minute)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 42, got)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRatio, 1e-9)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache(10)
	defer c.Stop()

	c.Set("a", "v", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheEvictsLRUWhenFull(t *testing.T) {
	c := NewTTLCache(2)
	defer c.Stop()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)

	// Touch "a" so "b" becomes the LRU victim.
	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", 3, time.Minute)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)

	assert.Equal(t, int64(1), c.Stats().Evictions)
}

func TestTTLCacheOverwriteDoesNotEvict(t *testing.T) {
	c := NewTTLCache(2)
	defer c.Stop()

	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Set("a", 10, time.Minute)

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, got)
	_, ok = c.Get("b")
	assert.True(t, ok)
	assert.Zero(t, c.Stats().Evictions)
}

func TestTTLCacheClear(t *testing.T) {
	c := NewTTLCache(10)
	defer c.Stop()

	c.Set("a", 1, time.Minute)
	c.Clear()

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Entries)
}
