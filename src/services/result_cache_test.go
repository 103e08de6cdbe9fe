package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResultCache_PutGet(t *testing.T) {
	c := NewResultCache(8, time.Minute)

	c.Put("k1", []string{"a", "b"})
	got, ok := c.Get("k1")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestResultCache_CachesEmptyResults(t *testing.T) {
	c := NewResultCache(8, time.Minute)

	c.Put("none", []string{})
	got, ok := c.Get("none")
	assert.True(t, ok, "an empty candidate list is a valid cached value")
	assert.Empty(t, got)
}

func TestResultCache_TTLExpiry(t *testing.T) {
	c := NewResultCache(8, 50*time.Millisecond)

	c.Put("k1", []string{"a"})
	_, ok := c.Get("k1")
	assert.True(t, ok)

	time.Sleep(80 * time.Millisecond)
	_, ok = c.Get("k1")
	assert.False(t, ok, "expired entry must read as a miss")
}

func TestResultCache_CapacityBound(t *testing.T) {
	c := NewResultCache(2, time.Minute)

	c.Put("k1", []string{"a"})
	c.Put("k2", []string{"b"})
	c.Put("k3", []string{"c"})

	assert.LessOrEqual(t, c.Len(), 2)
	_, ok := c.Get("k3")
	assert.True(t, ok, "newest entry survives eviction")
}

func TestResultCache_Purge(t *testing.T) {
	c := NewResultCache(8, time.Minute)

	c.Put("k1", []string{"a"})
	c.Put("k2", []string{"b"})
	c.Purge()

	assert.Zero(t, c.Len())
	_, ok := c.Get("k1")
	assert.False(t, ok)
}
