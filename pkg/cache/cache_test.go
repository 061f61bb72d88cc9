package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetSetRoundTrip(t *testing.T) {
	c, err := New[string, int](4, time.Minute)
	require.NoError(t, err)

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	stats := c.GetStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCacheLRUEviction(t *testing.T) {
	c, err := New[string, int](2, 0)
	require.NoError(t, err)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // evicts "a", the least-recently-used

	_, ok := c.Get("a")
	assert.False(t, ok, "least-recently-used key should have been evicted")

	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)

	stats := c.GetStats()
	assert.Equal(t, uint64(1), stats.Evictions)
}

func TestCacheTTLExpiry(t *testing.T) {
	c, err := New[string, int](4, time.Millisecond)
	require.NoError(t, err)

	c.Set("a", 1)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok, "expired entry should not be returned")
}

func TestCacheSetWithTTLOverride(t *testing.T) {
	c, err := New[string, int](4, time.Minute)
	require.NoError(t, err)

	c.SetWithTTL("short", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
}
