// Package rng provides deterministic random streams for toy generation.
package rng

import (
	"math/rand/v2"

	"xelimit/ports"
)

// Seeded derives independent PCG streams from a base seed, a job name and
// an index. The same triple always yields the same stream.
type Seeded struct {
	seed uint64
}

func NewSeeded(seed uint64) *Seeded {
	return &Seeded{seed: seed}
}

var _ ports.RNGPort = (*Seeded)(nil)

func (s *Seeded) Seed() uint64 { return s.seed }

func (s *Seeded) Stream(name string, index int) *rand.Rand {
	hi := s.seed ^ uint64(hashString(name))<<32
	lo := uint64(index)*0x9E3779B97F4A7C15 + s.seed
	return rand.New(rand.NewPCG(hi, lo))
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = hash*33 + uint32(c)
	}
	return hash
}
