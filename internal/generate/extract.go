package generate

import (
	"errors"
	"strings"

	"github.com/samcharles93/typofix/internal/prompt"
	"github.com/samcharles93/typofix/internal/tokenizer"
)

// ErrEmptyOutput means the model produced nothing usable for the line.
var ErrEmptyOutput = errors.New("model produced empty output")

// Extractor recovers the corrected line from raw decoded model output.
// Small models echo parts of the prompt around the answer; the extractor
// cuts the continuation at turn boundaries and skips echoed lines.
type Extractor struct {
	skip []string
}

// NewExtractor builds an extractor for a template. Lines opening with the
// template's instruction or with one of its corrected examples are prompt
// echoes, never answers.
func NewExtractor(tmpl *prompt.Template) *Extractor {
	skip := []string{tmpl.Instruction()}
	for _, ex := range tmpl.Examples() {
		skip = append(skip, ex.Fix)
	}
	return &Extractor{skip: skip}
}

// Extract pulls the corrected line out of raw. The continuation is cut at
// the end-of-text sentinel and at the start of any next turn, then the
// first line that is not a prompt echo wins. An Input: prefix on the
// answer is stripped.
func (x *Extractor) Extract(raw string) (string, error) {
	out := raw
	if i := strings.Index(out, tokenizer.EndOfText); i >= 0 {
		out = out[:i]
	}
	if i := strings.Index(out, "\n"+prompt.MarkerInput); i >= 0 {
		out = out[:i]
	}
	if i := strings.Index(out, "\n"+prompt.MarkerOutput); i >= 0 {
		out = out[:i]
	}

	// The model sometimes answers as a fresh "Input:" turn.
	if rest, ok := strings.CutPrefix(strings.TrimSpace(out), prompt.MarkerInput); ok {
		if c := strings.TrimSpace(rest); c != "" {
			return c, nil
		}
	}

	for _, line := range strings.Split(out, "\n") {
		tr := strings.TrimSpace(line)
		if tr == "" || strings.HasPrefix(tr, prompt.MarkerOutput) || x.isEcho(tr) {
			continue
		}
		if rest, ok := strings.CutPrefix(tr, prompt.MarkerInput); ok {
			if c := strings.TrimSpace(rest); c != "" {
				return c, nil
			}
		}
		return tr, nil
	}

	if fb := strings.TrimSpace(out); fb != "" {
		return fb, nil
	}
	return "", ErrEmptyOutput
}

func (x *Extractor) isEcho(line string) bool {
	for _, p := range x.skip {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
