package generate

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/samcharles93/typofix/internal/logits"
	"github.com/samcharles93/typofix/internal/session"
)

// GenerationError reports a failure partway through a generation. Tokens
// holds everything sampled before the failing step, so callers can still
// inspect or report partial output.
type GenerationError struct {
	Step   int
	Tokens []int
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed at step %d after %d tokens: %v", e.Step, len(e.Tokens), e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// LoopResult is what one completed generation pass produced.
type LoopResult struct {
	Tokens []int
	// Clamped is set when MaxNewTokens exceeded the room left after the
	// prompt and EffectiveMax took over.
	Clamped      bool
	EffectiveMax int
	PrefillTime  time.Duration
	DecodeTime   time.Duration
}

// Run drives one generation pass over an open session: prefill the prompt
// once, then project, assemble, and sample a token per step, feeding each
// accepted token back through decode. It stops at the first stop token
// (which stays in the output), at the effective cap, or when ctx is done.
//
// Any failure after validation comes back as a *GenerationError.
func Run(ctx context.Context, sess *session.Session, asm *logits.Assembler, smp *logits.Sampler, promptIDs []int, cfg Config) (LoopResult, error) {
	if err := cfg.Validate(); err != nil {
		return LoopResult{}, err
	}

	var res LoopResult
	res.EffectiveMax = cfg.MaxNewTokens
	if room := cfg.ContextLength - len(promptIDs); res.EffectiveMax > room {
		res.EffectiveMax = room
		res.Clamped = true
	}

	start := time.Now()
	h, err := sess.Prefill(promptIDs)
	if err != nil {
		return LoopResult{}, &GenerationError{Err: err}
	}
	res.PrefillTime = time.Since(start)

	toks := make([]int, 0, max(res.EffectiveMax, 0))
	decodeStart := time.Now()
	for i := 0; i < res.EffectiveMax; i++ {
		if err := ctx.Err(); err != nil {
			return LoopResult{}, &GenerationError{Step: i, Tokens: toks, Err: err}
		}

		shards, err := sess.Project(h)
		if err != nil {
			return LoopResult{}, &GenerationError{Step: i, Tokens: toks, Err: err}
		}
		row, err := asm.Assemble(shards)
		if err != nil {
			return LoopResult{}, &GenerationError{Step: i, Tokens: toks, Err: err}
		}
		next, err := smp.Sample(row)
		if err != nil {
			return LoopResult{}, &GenerationError{Step: i, Tokens: toks, Err: err}
		}

		toks = append(toks, next)
		if slices.Contains(cfg.StopTokens, next) {
			break
		}
		// The cap also bounds the window: EffectiveMax never exceeds the
		// room left after the prompt, so the final token needs no decode.
		if i+1 == res.EffectiveMax {
			break
		}

		h, err = sess.Decode(next)
		if err != nil {
			return LoopResult{}, &GenerationError{Step: i, Tokens: toks, Err: err}
		}
	}
	res.DecodeTime = time.Since(decodeStart)
	res.Tokens = toks
	return res, nil
}
