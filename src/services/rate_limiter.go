package services

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	bucketCleanupInterval = 5 * time.Minute
	bucketIdleCutoff      = 10 * time.Minute
)

// bucket pairs a token bucket with the rate it was built for and its last
// use, so stale entries can be swept and rate changes rebuild the bucket.
type bucket struct {
	limiter  *rate.Limiter
	rps      int
	lastUsed time.Time
}

// RateLimiter holds per-key token buckets. Bucket capacity equals the key's
// requests_per_second, refill is continuous, so a key may burst up to one
// bucket after idle time while its sustained rate stays bounded at the
// configured value. Unlimited keys and the admin key never reach Allow and
// hold no bucket state.
//
// The map lock only guards lookup and insertion; token consumption is
// serialized per key inside rate.Limiter, so concurrent admission checks on
// one key never spend the same token twice and checks on distinct keys do
// not contend.
type RateLimiter struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
	stopCh  chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a limiter registry and starts its sweep goroutine.
func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		buckets: make(map[string]*bucket),
		stopCh:  make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Allow runs one admission check for the key at the given rate. It consumes
// a token and admits, or rejects without consuming anything. A changed rps
// (admin updated the key) discards the old bucket.
func (rl *RateLimiter) Allow(key string, rps int) bool {
	if rps <= 0 {
		return false
	}
	return rl.getBucket(key, rps).Allow()
}

func (rl *RateLimiter) getBucket(key string, rps int) *rate.Limiter {
	rl.mu.RLock()
	b, ok := rl.buckets[key]
	rl.mu.RUnlock()
	if ok && b.rps == rps {
		rl.mu.Lock()
		b.lastUsed = time.Now()
		rl.mu.Unlock()
		return b.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	// Re-check under the write lock
	if b, ok = rl.buckets[key]; ok && b.rps == rps {
		b.lastUsed = time.Now()
		return b.limiter
	}
	b = &bucket{
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		rps:      rps,
		lastUsed: time.Now(),
	}
	rl.buckets[key] = b
	return b.limiter
}

// Forget drops the bucket for a key. Called when a key is removed or its
// rate is changed, so registry entry and limiter state go together.
func (rl *RateLimiter) Forget(key string) {
	rl.mu.Lock()
	delete(rl.buckets, key)
	rl.mu.Unlock()
}

// cleanupLoop sweeps idle buckets so the map stays bounded by the set of
// recently active keys.
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(bucketCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-bucketIdleCutoff)
	for key, b := range rl.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Stop terminates the sweep goroutine.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}
