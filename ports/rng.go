package ports

import (
	"math/rand/v2"
)

// RNGPort provides seeded random number generation for reproducible toys
type RNGPort interface {
	// Stream returns a deterministic generator for one named job and index, so
	// a toy can be regenerated without replaying the whole batch
	Stream(name string, index int) *rand.Rand

	// Seed returns the base seed streams derive from
	Seed() uint64
}
