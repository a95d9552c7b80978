// Package session wraps a backend state in the request lifecycle: prefill
// exactly once, then decode and project until the session closes. Calls
// out of order fail immediately instead of producing garbage downstream.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/samcharles93/typofix/internal/backend"
	"github.com/samcharles93/typofix/internal/logger"
)

var (
	ErrNotPrefilled     = errors.New("session: not prefilled")
	ErrAlreadyPrefilled = errors.New("session: already prefilled")
	ErrClosed           = errors.New("session: closed")
)

// Phase is where a session is in its lifecycle.
type Phase int

const (
	PhaseNew Phase = iota
	PhasePrefilled
	PhaseDecoding
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "new"
	case PhasePrefilled:
		return "prefilled"
	case PhaseDecoding:
		return "decoding"
	case PhaseClosed:
		return "closed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Event is one step in the session trace, kept for verbose output.
type Event struct {
	Op   string
	Note string
	Took time.Duration
}

// Options configure a session at open.
type Options struct {
	Logger logger.Logger
	// Trace records per-call events for verbose output.
	Trace bool
}

// Session owns exactly one backend state for exactly one request.
// Not safe for concurrent use; each request opens its own.
type Session struct {
	state  backend.State
	spec   backend.Spec
	log    logger.Logger
	phase  Phase
	pos    int
	trace  bool
	events []Event
}

// Open validates the model geometry once, opens a fresh backend state, and
// returns a session in PhaseNew. The caller must Close it on every path.
func Open(m backend.Model, opts Options) (*Session, error) {
	spec := m.Spec()
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("session open: model geometry: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	st, err := m.NewState()
	if err != nil {
		return nil, fmt.Errorf("session open: %w", err)
	}
	s := &Session{
		state: st,
		spec:  spec,
		log:   log.With("model", m.ID()),
		trace: opts.Trace,
	}
	s.record("open", fmt.Sprintf("context=%d shards=%d", spec.ContextLength, spec.Parts()), 0)
	return s, nil
}

// Spec returns the geometry validated at open.
func (s *Session) Spec() backend.Spec { return s.spec }

// Pos returns how many positions the state has consumed.
func (s *Session) Pos() int { return s.pos }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase { return s.phase }

// Events returns the recorded trace. Empty unless Options.Trace was set.
func (s *Session) Events() []Event { return s.events }

// Prefill runs the embedding and prefill components over the prompt ids.
// Valid only in PhaseNew.
func (s *Session) Prefill(ids []int) (backend.Hidden, error) {
	switch s.phase {
	case PhaseClosed:
		return nil, ErrClosed
	case PhasePrefilled, PhaseDecoding:
		return nil, ErrAlreadyPrefilled
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("session prefill: empty prompt")
	}
	if len(ids) > s.spec.ContextLength {
		return nil, fmt.Errorf("session prefill: %d prompt tokens exceed context %d", len(ids), s.spec.ContextLength)
	}

	start := time.Now()
	h, err := safePrefill(s.state, ids)
	if err != nil {
		return nil, fmt.Errorf("prefill: %w", err)
	}
	s.phase = PhasePrefilled
	s.pos = len(ids)
	s.record("prefill", fmt.Sprintf("tokens=%d", len(ids)), time.Since(start))
	s.log.Debug("prefill complete", "tokens", len(ids), "took", time.Since(start))
	return h, nil
}

// Decode advances the state by one token. Valid after Prefill.
func (s *Session) Decode(id int) (backend.Hidden, error) {
	switch s.phase {
	case PhaseClosed:
		return nil, ErrClosed
	case PhaseNew:
		return nil, ErrNotPrefilled
	}
	if s.pos >= s.spec.ContextLength {
		return nil, fmt.Errorf("session decode: context window full at %d", s.pos)
	}

	start := time.Now()
	h, err := safeDecode(s.state, id)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	s.phase = PhaseDecoding
	s.pos++
	s.record("decode", fmt.Sprintf("token=%d pos=%d", id, s.pos), time.Since(start))
	return h, nil
}

// Project runs the vocabulary projection on h. Valid after Prefill.
func (s *Session) Project(h backend.Hidden) ([]backend.Shard, error) {
	switch s.phase {
	case PhaseClosed:
		return nil, ErrClosed
	case PhaseNew:
		return nil, ErrNotPrefilled
	}

	start := time.Now()
	shards, err := safeProject(s.state, h)
	if err != nil {
		return nil, fmt.Errorf("project: %w", err)
	}
	s.record("project", fmt.Sprintf("shards=%d", len(shards)), time.Since(start))
	return shards, nil
}

// Close releases the backend state. Safe to call more than once.
func (s *Session) Close() error {
	if s.phase == PhaseClosed {
		return nil
	}
	s.phase = PhaseClosed
	s.record("close", fmt.Sprintf("pos=%d", s.pos), 0)
	if err := s.state.Close(); err != nil {
		return fmt.Errorf("session close: %w", err)
	}
	return nil
}

func (s *Session) record(op, note string, took time.Duration) {
	if !s.trace {
		return
	}
	s.events = append(s.events, Event{Op: op, Note: note, Took: took})
}

// The safe* wrappers convert backend panics into errors so a misbehaving
// component fails one line, not the process.

func safePrefill(st backend.State, ids []int) (h backend.Hidden, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Prefill: %v", rec)
		}
	}()
	return st.Prefill(ids)
}

func safeDecode(st backend.State, id int) (h backend.Hidden, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Decode: %v", rec)
		}
	}()
	return st.Decode(id)
}

func safeProject(st backend.State, hidden backend.Hidden) (shards []backend.Shard, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Project: %v", rec)
		}
	}()
	return st.Project(hidden)
}
