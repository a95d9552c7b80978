// Package logits turns sharded projection output into token choices:
// the Assembler stitches shards back into one vocabulary-indexed row and
// the Sampler reduces that row to a single token id.
package logits

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// SamplerConfig configures a Sampler. Temperature zero selects pure argmax.
// A negative Seed asks for a process-entropy seed; any other value makes
// draws reproducible.
type SamplerConfig struct {
	Temperature float64
	Seed        int64
}

// Validate rejects configurations before any backend work happens.
func (c SamplerConfig) Validate() error {
	if c.Temperature < 0 {
		return fmt.Errorf("temperature %g, want >= 0", c.Temperature)
	}
	return nil
}

// Sampler draws token ids from logits rows. One Sampler serves one
// generation; it is not safe for concurrent use.
type Sampler struct {
	temp   float64
	greedy bool
	rng    *rand.Rand
	prob   []float64
}

// NewSampler builds a sampler. Callers validate the config first; an
// invalid temperature here degrades to greedy rather than panicking.
func NewSampler(cfg SamplerConfig) *Sampler {
	seed := cfg.Seed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler{
		temp:   cfg.Temperature,
		greedy: cfg.Temperature <= 0,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Sample picks one token id from the full distribution.
//
// Greedy mode returns the argmax, ties broken by the lowest token id.
// Otherwise logits are scaled by the inverse temperature, softmaxed with
// max subtraction, and a single categorical draw decides.
func (s *Sampler) Sample(logits []float32) (int, error) {
	if len(logits) == 0 {
		return 0, fmt.Errorf("sample: empty logits row")
	}
	if s.greedy {
		return argmax(logits), nil
	}

	invTemp := 1.0 / s.temp
	maxv := math.Inf(-1)
	for _, l := range logits {
		if v := float64(l) * invTemp; v > maxv {
			maxv = v
		}
	}

	if cap(s.prob) < len(logits) {
		s.prob = make([]float64, len(logits))
	}
	prob := s.prob[:len(logits)]
	var sum float64
	for i, l := range logits {
		e := math.Exp(float64(l)*invTemp - maxv)
		prob[i] = e
		sum += e
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0, fmt.Errorf("sample: degenerate distribution (sum %v)", sum)
	}

	r := s.rng.Float64() * sum
	var c float64
	for i, p := range prob {
		c += p
		if r < c {
			return i, nil
		}
	}
	// Float accumulation can land r a hair past the total.
	return len(logits) - 1, nil
}

// argmax returns the index of the maximum value. The strict > keeps the
// first (lowest) index on ties.
func argmax(x []float32) int {
	best := 0
	for i := 1; i < len(x); i++ {
		if x[i] > x[best] {
			best = i
		}
	}
	return best
}
