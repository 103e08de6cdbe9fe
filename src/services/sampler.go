package services

import (
	"math/rand/v2"
	"slices"
)

// Sampler draws uniform random subsets from candidate sequences.
type Sampler struct {
	intn func(n int) int
}

// NewSampler creates a sampler backed by the shared math/rand/v2 source,
// which is safe for concurrent use.
func NewSampler() *Sampler {
	return &Sampler{intn: rand.IntN}
}

// NewSeededSampler creates a deterministic sampler for tests. Not safe for
// concurrent use.
func NewSeededSampler(seed uint64) *Sampler {
	r := rand.New(rand.NewPCG(seed, seed))
	return &Sampler{intn: r.IntN}
}

// Sample draws n distinct elements without replacement via a partial
// Fisher-Yates shuffle, so every subset of size n is equally likely and the
// returned order is itself random. When fewer than n candidates exist it
// returns all of them shuffled and reports the shortfall; that is never an
// error. Entries are never repeated or synthesized.
func (s *Sampler) Sample(ids []string, n int) (picked []string, shortfall int) {
	if n < 0 {
		n = 0
	}
	pool := slices.Clone(ids)
	k := min(n, len(pool))
	for i := 0; i < k; i++ {
		j := i + s.intn(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k], n - k
}
