// Package reference implements the backend capability in pure arithmetic.
// It stands in for a real accelerator during tests, demos, and shape
// verification: every verb is deterministic in the bundle's model id and
// geometry, and hidden values are rounded through IEEE 754 half precision
// so orchestration code sees the same numerics an fp16 accelerator would
// produce. The logits it emits carry no linguistic meaning.
package reference

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/x448/float16"

	"github.com/samcharles93/typofix/internal/backend"
)

// Type is the model type the factory registers under.
const Type = "reference"

func init() {
	backend.Register(Type, Attach)
}

var (
	errModelClosed    = errors.New("reference: model closed")
	errStateClosed    = errors.New("reference: state closed")
	errNotPrefilled   = errors.New("reference: decode before prefill")
	errDoublePrefill  = errors.New("reference: state already prefilled")
	errWindowExceeded = errors.New("reference: context window exhausted")
)

// Attach builds a reference model for the bundle. Component file paths are
// ignored; only the geometry and the model id feed the arithmetic.
func Attach(bundle backend.Bundle) (backend.Model, error) {
	if err := bundle.Spec.Validate(); err != nil {
		return nil, fmt.Errorf("reference: %w", err)
	}
	return &Model{
		id:   bundle.ModelID,
		spec: bundle.Spec,
		seed: seedFor(bundle.ModelID),
	}, nil
}

// New builds a reference model directly from a spec, bypassing the
// registry. Tests use it to get a backend without a bundle on disk.
func New(id string, spec backend.Spec) (*Model, error) {
	m, err := Attach(backend.Bundle{ModelID: id, Spec: spec})
	if err != nil {
		return nil, err
	}
	return m.(*Model), nil
}

// Model holds the immutable half: geometry and the weight seed. All state
// lives in States, so one Model serves concurrent sessions.
type Model struct {
	id   string
	spec backend.Spec
	seed uint64

	mu     sync.Mutex
	closed bool
}

func (m *Model) ID() string         { return m.id }
func (m *Model) Spec() backend.Spec { return m.spec }

func (m *Model) NewState() (backend.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errModelClosed
	}
	return &state{
		model: m,
		acc:   make([]float32, m.spec.HiddenSize),
	}, nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// state folds embedded tokens into a single fp16-rounded accumulator row.
// The fold plays the role of an attention cache: the hidden state at any
// position depends on every token fed so far and on their order.
type state struct {
	model     *Model
	acc       []float32
	pos       int
	prefilled bool
	closed    bool
}

func (s *state) Prefill(ids []int) (backend.Hidden, error) {
	if s.closed {
		return nil, errStateClosed
	}
	if s.prefilled {
		return nil, errDoublePrefill
	}
	if len(ids) == 0 {
		return nil, errors.New("reference: empty prompt")
	}
	if len(ids) > s.model.spec.ContextLength {
		return nil, fmt.Errorf("reference: prompt length %d exceeds context %d", len(ids), s.model.spec.ContextLength)
	}
	for _, id := range ids {
		s.fold(id)
	}
	s.prefilled = true
	return s.hidden(), nil
}

func (s *state) Decode(id int) (backend.Hidden, error) {
	if s.closed {
		return nil, errStateClosed
	}
	if !s.prefilled {
		return nil, errNotPrefilled
	}
	if s.pos >= s.model.spec.ContextLength {
		return nil, errWindowExceeded
	}
	s.fold(id)
	return s.hidden(), nil
}

func (s *state) Project(h backend.Hidden) ([]backend.Shard, error) {
	if s.closed {
		return nil, errStateClosed
	}
	spec := s.model.spec
	if len(h) != spec.HiddenSize {
		return nil, fmt.Errorf("reference: hidden length %d, want %d", len(h), spec.HiddenSize)
	}
	// A cheap stand-in for the head matmul: each logit mixes a few hidden
	// lanes selected by the token index, so logits change whenever the
	// hidden state does.
	shards := make([]backend.Shard, spec.Parts())
	tok := 0
	for i, width := range spec.ShardWidths {
		shard := make(backend.Shard, width)
		for k := 0; k < width; k++ {
			w := mix(s.model.seed, uint64(tok), 0x9e)
			a := h[int(w%uint64(spec.HiddenSize))]
			b := h[int((w>>17)%uint64(spec.HiddenSize))]
			shard[k] = half(a - b + unitFloat(w>>32)*4)
			tok++
		}
		shards[i] = shard
	}
	return shards, nil
}

func (s *state) Close() error {
	s.closed = true
	s.acc = nil
	return nil
}

// fold advances the state by one token: embed it at the current position
// and blend it into the accumulator with fp16 rounding at every lane.
func (s *state) fold(id int) {
	seed := s.model.seed
	for j := range s.acc {
		e := unitFloat(mix(seed, uint64(uint(id)), uint64(j)))
		p := unitFloat(mix(seed, uint64(s.pos), uint64(j)|1<<40))
		s.acc[j] = half(s.acc[j]*0.5 + e + p*0.25)
	}
	s.pos++
}

func (s *state) hidden() backend.Hidden {
	out := make(backend.Hidden, len(s.acc))
	copy(out, s.acc)
	return out
}

func seedFor(modelID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(modelID))
	return h.Sum64()
}

// mix is a splitmix64 round over the three inputs.
func mix(a, b, c uint64) uint64 {
	z := a ^ (b * 0x9e3779b97f4a7c15) ^ (c * 0xbf58476d1ce4e5b9)
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// unitFloat maps a hash to [-1, 1).
func unitFloat(h uint64) float32 {
	return float32(int64(h%8192)-4096) / 4096
}

// half rounds through float16, matching accelerator output precision.
func half(v float32) float32 {
	return float16.Fromfloat32(v).Float32()
}
