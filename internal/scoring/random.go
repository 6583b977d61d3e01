package scoring

import (
	"math/rand/v2"
	"sync"
)

// RandomSource yields samples in [0,1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

type globalSource struct{}

func (globalSource) Float64() float64 { return rand.Float64() }

// DefaultSource draws from the goroutine-safe package-level generator.
func DefaultSource() RandomSource { return globalSource{} }

// lockedSource serializes access to a seeded generator so one Engine can be
// shared by concurrent HTTP handlers and stream workers.
type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// SeededSource returns a deterministic, goroutine-safe source.
func SeededSource(seed uint64) RandomSource {
	return &lockedSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}
