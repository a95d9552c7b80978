// Package generate runs the correction pipeline: render and encode the
// prompt, drive the model through prefill and per-token decode, then
// extract and clean the continuation. The Engine is the one entry point;
// everything underneath works on a single line at a time.
package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samcharles93/typofix/internal/backend"
	"github.com/samcharles93/typofix/internal/logger"
	"github.com/samcharles93/typofix/internal/logits"
	"github.com/samcharles93/typofix/internal/prompt"
	"github.com/samcharles93/typofix/internal/session"
	"github.com/samcharles93/typofix/internal/tokenizer"
)

// EngineConfig wires an Engine. Model and Tokenizer are required; the
// rest fall back to package defaults.
type EngineConfig struct {
	Model     backend.Model
	Tokenizer tokenizer.Tokenizer
	Template  *prompt.Template
	Corrector *Corrector
	Logger    logger.Logger
}

// Options are the per-call knobs for one Fix.
type Options struct {
	Temperature  float64
	MaxNewTokens int
	Seed         int64
	// Trace keeps the session event log on the Result for verbose output.
	Trace bool
}

// Result is one corrected line plus everything verbose output reports
// about how it was produced.
type Result struct {
	Input   string
	Output  string
	Raw     string
	Tokens  int
	Clamped bool
	Prefill time.Duration
	Decode  time.Duration
	Elapsed time.Duration
	ModelID string
	Trace   []session.Event
}

// Engine owns a loaded model and fixes lines against it. Every Fix call
// runs in its own session; nothing carries over between lines, so one
// Engine may serve concurrent calls as long as the backend allows it.
type Engine struct {
	model   backend.Model
	tok     tokenizer.Tokenizer
	builder *prompt.Builder
	extract *Extractor
	corr    *Corrector
	log     logger.Logger
	stops   []int
}

// NewEngine validates the wiring and builds an engine around an already
// loaded model.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Model == nil {
		return nil, errors.New("engine: no model")
	}
	if cfg.Tokenizer == nil {
		return nil, errors.New("engine: no tokenizer")
	}
	tmpl := cfg.Template
	if tmpl == nil {
		tmpl = prompt.Default()
	}
	corr := cfg.Corrector
	if corr == nil {
		corr = DefaultCorrector()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Engine{
		model:   cfg.Model,
		tok:     cfg.Tokenizer,
		builder: prompt.NewBuilder(tmpl, cfg.Tokenizer, cfg.Model.Spec().ContextLength),
		extract: NewExtractor(tmpl),
		corr:    corr,
		log:     log,
		stops:   tokenizer.StopIDs(cfg.Tokenizer),
	}, nil
}

// ModelID names the model the engine serves.
func (e *Engine) ModelID() string { return e.model.ID() }

// Close releases the model.
func (e *Engine) Close() error { return e.model.Close() }

// Fix corrects a single line. The whole pipeline runs inside one fresh
// session: build and encode the prompt, prefill, generate until a stop
// token or the cap, decode the continuation, extract the answer, and
// apply the corrections table.
func (e *Engine) Fix(ctx context.Context, line string, opts Options) (*Result, error) {
	start := time.Now()

	cfg := Config{
		Temperature:   opts.Temperature,
		MaxNewTokens:  opts.MaxNewTokens,
		ContextLength: e.model.Spec().ContextLength,
		StopTokens:    e.stops,
		Seed:          opts.Seed,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p, err := e.builder.Build(line)
	if err != nil {
		return nil, err
	}

	sess, err := session.Open(e.model, session.Options{Logger: e.log, Trace: opts.Trace})
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	asm := logits.NewAssembler(sess.Spec())
	smp := logits.NewSampler(logits.SamplerConfig{Temperature: cfg.Temperature, Seed: cfg.Seed})

	res, err := Run(ctx, sess, asm, smp, p.IDs, cfg)
	if err != nil {
		return nil, err
	}
	if res.Clamped {
		e.log.Warn("max new tokens clamped to the context window",
			"requested", cfg.MaxNewTokens, "effective", res.EffectiveMax)
	}

	raw, err := e.tok.Decode(res.Tokens)
	if err != nil {
		return nil, fmt.Errorf("decode output: %w", err)
	}
	text, err := e.extract.Extract(raw)
	if err != nil {
		return nil, err
	}
	out := e.corr.Apply(text)

	// Close before collecting events so the trace covers the whole
	// lifecycle. The deferred close then has nothing left to do.
	if err := sess.Close(); err != nil {
		return nil, err
	}

	r := &Result{
		Input:   p.Line,
		Output:  out,
		Raw:     raw,
		Tokens:  len(res.Tokens),
		Clamped: res.Clamped,
		Prefill: res.PrefillTime,
		Decode:  res.DecodeTime,
		Elapsed: time.Since(start),
		ModelID: e.model.ID(),
		Trace:   sess.Events(),
	}
	e.log.Debug("line fixed",
		"input", r.Input, "output", r.Output, "tokens", r.Tokens, "elapsed", r.Elapsed)
	return r, nil
}
