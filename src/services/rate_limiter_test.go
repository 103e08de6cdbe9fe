package services

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstUpToCapacity(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	// A fresh bucket holds rps tokens, so rps immediate checks succeed and
	// the next one fails.
	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow("key-a", 5), "request %d within burst", i)
	}
	assert.False(t, rl.Allow("key-a", 5), "burst exhausted")
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	const rps = 50
	for i := 0; i < rps; i++ {
		rl.Allow("key-b", rps)
	}
	assert.False(t, rl.Allow("key-b", rps))

	// At 50 rps one token takes 20ms to refill
	time.Sleep(30 * time.Millisecond)
	assert.True(t, rl.Allow("key-b", rps))
}

func TestRateLimiter_KeysIsolated(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		rl.Allow("key-c", 3)
	}
	assert.False(t, rl.Allow("key-c", 3))
	assert.True(t, rl.Allow("key-d", 3), "another key's bucket is untouched")
}

func TestRateLimiter_RateChangeRebuildsBucket(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	for i := 0; i < 2; i++ {
		rl.Allow("key-e", 2)
	}
	assert.False(t, rl.Allow("key-e", 2))

	// New rate, new bucket with fresh capacity
	assert.True(t, rl.Allow("key-e", 10))
}

func TestRateLimiter_ForgetResetsState(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	for i := 0; i < 2; i++ {
		rl.Allow("key-f", 2)
	}
	assert.False(t, rl.Allow("key-f", 2))

	rl.Forget("key-f")
	assert.True(t, rl.Allow("key-f", 2))
}

func TestRateLimiter_ZeroRateRejects(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	assert.False(t, rl.Allow("key-g", 0))
	assert.False(t, rl.Allow("key-g", -1))
}

// Concurrent admission checks on one key must never admit more requests than
// tokens existed, no matter how the goroutines interleave.
func TestRateLimiter_ConcurrentTokenConservation(t *testing.T) {
	rl := NewRateLimiter()
	defer rl.Stop()

	const rps = 10
	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("key-h", rps) {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	// The window is short enough that at most one extra token could refill
	assert.LessOrEqual(t, admitted.Load(), int64(rps+1))
	assert.GreaterOrEqual(t, admitted.Load(), int64(rps))
}

func TestRateLimiter_StopIdempotent(t *testing.T) {
	rl := NewRateLimiter()
	rl.Stop()
	rl.Stop()
}
