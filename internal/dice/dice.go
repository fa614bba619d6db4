// Package dice provides the random source used by turnover rolls.
//
// Every random draw in the ledger goes through a Roller so tests can replace
// the source with a fixed sequence and assert exact outcomes.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
)

// Roller rolls dice.
type Roller interface {
	// D6 rolls n six-sided dice and returns the sum.
	D6(n int) int
	// Die rolls a single die with the given number of sides (1..sides).
	Die(sides int) int
}

// Seeded is a Roller backed by math/rand with an explicit seed.
//
// Given the same seed and the same sequence of calls, a Seeded roller always
// produces the same results.
type Seeded struct {
	seed int64
	rng  *rand.Rand
}

func NewSeeded(seed int64) *Seeded {
	return &Seeded{seed: seed, rng: rand.New(rand.NewSource(seed))}
}

// Seed reports the seed the roller was created with.
func (s *Seeded) Seed() int64 { return s.seed }

func (s *Seeded) D6(n int) int {
	total := 0
	for i := 0; i < n; i++ {
		total += s.Die(6)
	}
	return total
}

func (s *Seeded) Die(sides int) int {
	if sides <= 0 {
		return 0
	}
	return s.rng.Intn(sides) + 1
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// ErrExhausted is the panic value raised when a Sequence runs out of values.
var ErrExhausted = errors.New("dice sequence exhausted")

// Sequence replays fixed results. D6(n) consumes one value as the already
// summed total; Die consumes one value as the face rolled.
type Sequence struct {
	values []int
	next   int
}

func NewSequence(values ...int) *Sequence {
	return &Sequence{values: append([]int(nil), values...)}
}

func (s *Sequence) D6(int) int { return s.pop() }

func (s *Sequence) Die(int) int { return s.pop() }

// Remaining reports how many values have not been consumed.
func (s *Sequence) Remaining() int { return len(s.values) - s.next }

func (s *Sequence) pop() int {
	if s.next >= len(s.values) {
		panic(ErrExhausted)
	}
	v := s.values[s.next]
	s.next++
	return v
}
