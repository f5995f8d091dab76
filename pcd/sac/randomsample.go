package sac

import (
	"math/rand"
)

// NewRandomSampler returns a uniform sampler of [0, n) drawing from rng.
// n must be positive. rng is not safe for concurrent use.
func NewRandomSampler(rng *rand.Rand, n int) Sampler {
	if n < 0x8000000 {
		return &randomSampler31{rng, int32(n)}
	}
	return &randomSampler63{rng, int64(n)}
}

type randomSampler31 struct {
	rng *rand.Rand
	n   int32
}

func (s *randomSampler31) Sample() int {
	return int(s.rng.Int31n(s.n))
}

type randomSampler63 struct {
	rng *rand.Rand
	n   int64
}

func (s *randomSampler63) Sample() int {
	return int(s.rng.Int63n(s.n))
}
