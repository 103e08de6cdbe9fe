package services

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ResultCache memoizes candidate filename sequences per normalized filter
// spec, so hot filter combinations skip the full index scan. Bounded by
// entry count with LRU eviction; entries older than the TTL are never
// returned and are removed lazily. Writes to the index are not reflected
// until the affected entries expire, a bounded staleness of at most one TTL
// window.
type ResultCache struct {
	lru *expirable.LRU[string, []string]
}

// NewResultCache creates a cache with the given capacity and per-entry TTL.
func NewResultCache(capacity int, ttl time.Duration) *ResultCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &ResultCache{lru: expirable.NewLRU[string, []string](capacity, nil, ttl)}
}

// Get returns the cached candidate sequence for a normalized cache key.
// Expired entries report a miss.
func (c *ResultCache) Get(key string) ([]string, bool) {
	return c.lru.Get(key)
}

// Put stores a candidate sequence, evicting the least-recently-accessed
// entry when at capacity.
func (c *ResultCache) Put(key string, ids []string) {
	c.lru.Add(key, ids)
}

// Len returns the current entry count, expired entries included until swept.
func (c *ResultCache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *ResultCache) Purge() {
	c.lru.Purge()
}
