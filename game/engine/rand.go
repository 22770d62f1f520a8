package engine

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
)

// Rand is the randomness the engine needs
type Rand interface {
	IntN(n int) int
}

// NewRand returns a ChaCha8 generator seeded from crypto/rand
func NewRand() Rand {
	var seed [32]byte
	_, _ = crand.Read(seed[:])
	return rand.New(rand.NewChaCha8(seed))
}

// NewSeededRand returns a reproducible generator
func NewSeededRand(seed uint64) Rand {
	var s [32]byte
	binary.LittleEndian.PutUint64(s[:8], seed)
	return rand.New(rand.NewChaCha8(s))
}
