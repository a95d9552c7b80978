package generate

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig marks configuration rejected before any backend call.
var ErrInvalidConfig = errors.New("invalid generation config")

// Config bounds one generation pass. ContextLength and StopTokens come
// from the loaded model; the rest are per-request knobs.
type Config struct {
	Temperature   float64
	MaxNewTokens  int
	ContextLength int
	StopTokens    []int
	Seed          int64
}

// Validate rejects configurations the loop cannot run with. Range limits
// beyond these (CLI bounds, API bounds) belong to the callers that impose
// them.
func (c Config) Validate() error {
	if c.Temperature < 0 {
		return fmt.Errorf("%w: temperature %g, want >= 0", ErrInvalidConfig, c.Temperature)
	}
	if c.MaxNewTokens <= 0 {
		return fmt.Errorf("%w: max new tokens %d, want >= 1", ErrInvalidConfig, c.MaxNewTokens)
	}
	if c.ContextLength <= 0 {
		return fmt.Errorf("%w: context length %d, want >= 1", ErrInvalidConfig, c.ContextLength)
	}
	return nil
}
