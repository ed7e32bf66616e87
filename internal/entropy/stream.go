// Package entropy provides per-subsystem seeded random streams. Every
// subsystem owns its own Stream so identical seeds and inputs replay to
// identical outputs; global rand is never used in the simulation.
package entropy

import (
	"math/rand"
)

// Stream is a deterministic random source for one subsystem.
type Stream struct {
	name string
	seed int64
	rng  *rand.Rand
	// draws counts values taken since the last reseed, so the stream
	// position can be captured in snapshots and restored exactly.
	draws uint64
}

// NewStream derives a subsystem stream from the world seed and a stable
// subsystem name. Different names yield independent sequences.
func NewStream(worldSeed int64, name string) *Stream {
	seed := worldSeed
	for _, c := range name {
		seed = seed*31 + int64(c)
	}
	return &Stream{
		name: name,
		seed: seed,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Float64 returns a uniform value in [0, 1).
func (s *Stream) Float64() float64 {
	s.draws++
	return s.rng.Float64()
}

// Range returns a uniform value in [lo, hi).
func (s *Stream) Range(lo, hi float64) float64 {
	return lo + s.Float64()*(hi-lo)
}

// Intn returns a uniform int in [0, n). n must be > 0.
func (s *Stream) Intn(n int) int {
	s.draws++
	return s.rng.Intn(n)
}

// Chance returns true with probability p.
func (s *Stream) Chance(p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	return s.Float64() < p
}

// WeightedIndex draws an index proportional to the given weights.
// Returns -1 when all weights are zero.
func (s *Stream) WeightedIndex(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		return -1
	}
	roll := s.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		roll -= w
		if roll < 0 {
			return i
		}
	}
	return len(weights) - 1
}

// State captures the stream position for snapshots.
type State struct {
	Name  string `json:"name"`
	Seed  int64  `json:"seed"`
	Draws uint64 `json:"draws"`
}

// State returns the current replayable position.
func (s *Stream) State() State {
	return State{Name: s.name, Seed: s.seed, Draws: s.draws}
}

// Restore rewinds the stream to a captured position by reseeding and
// replaying the recorded number of draws.
func (s *Stream) Restore(st State) {
	s.seed = st.Seed
	s.rng = rand.New(rand.NewSource(st.Seed))
	s.draws = 0
	for i := uint64(0); i < st.Draws; i++ {
		s.Float64()
	}
	s.draws = st.Draws
}
