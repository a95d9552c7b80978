// Package prompt renders the few-shot correction prompt and enforces the
// input rules before any model work happens. A rejected line never costs a
// backend call.
package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// Errors the builder classifies rejections under. Callers branch with
// errors.Is; the wrapped detail names the offending rule.
var (
	ErrBadInput = errors.New("unusable input line")
	ErrTooLong  = errors.New("prompt does not fit the context window")
)

// The markers the template uses to separate turns. Input containing them
// would let a line forge extra turns, so the builder rejects it. Exported
// because extraction cuts raw model output on the same markers.
const (
	MarkerInput  = "Input:"
	MarkerOutput = "Output:"
)

// Example is one few-shot pair: the typo side and its correction.
type Example struct {
	Typo string
	Fix  string
}

// Template is the instruction plus ordered few-shot pairs. Immutable after
// construction; Render never mutates it.
type Template struct {
	instruction string
	examples    []Example
}

// New builds a template from an instruction and example pairs. The pairs
// are copied.
func New(instruction string, examples []Example) *Template {
	return &Template{
		instruction: instruction,
		examples:    append([]Example(nil), examples...),
	}
}

// Default returns the template the model was tuned against. The examples
// cover the correction classes the tuning set emphasized (transpositions,
// missing apostrophes, ie/ei swaps, doubled consonants).
func Default() *Template {
	return New("Fix typos in these sentences:", []Example{
		{Typo: "the quik brown fox", Fix: "the quick brown fox"},
		{Typo: "i cant beleive it", Fix: "i can't believe it"},
		{Typo: "recieve the package", Fix: "receive the package"},
		{Typo: "seperate the items", Fix: "separate the items"},
		{Typo: "occured yesterday", Fix: "occurred yesterday"},
	})
}

// Instruction returns the header line.
func (t *Template) Instruction() string { return t.instruction }

// Examples returns a copy of the few-shot pairs.
func (t *Template) Examples() []Example {
	return append([]Example(nil), t.examples...)
}

// Render produces the full prompt text for one input line. The rendered
// prompt ends exactly at "Output:" with no trailing space; the model's
// continuation is the correction.
func (t *Template) Render(line string) string {
	var b strings.Builder
	b.WriteString(t.instruction)
	b.WriteString("\n\n")
	for _, ex := range t.examples {
		fmt.Fprintf(&b, "%s %s\n%s %s\n\n", MarkerInput, ex.Typo, MarkerOutput, ex.Fix)
	}
	fmt.Fprintf(&b, "%s %s\n%s", MarkerInput, line, MarkerOutput)
	return b.String()
}

// Encoder is the slice of the tokenizer the builder needs.
type Encoder interface {
	Encode(text string) ([]int, error)
}

// Prompt is a rendered, encoded prompt ready for prefill.
type Prompt struct {
	Line string // the normalized input line
	Text string
	IDs  []int
}

// Builder validates lines, renders the template, and enforces the token
// budget against the model's context window.
type Builder struct {
	tmpl          *Template
	enc           Encoder
	contextLength int
}

// NewBuilder wires a template to a tokenizer and a context length.
func NewBuilder(tmpl *Template, enc Encoder, contextLength int) *Builder {
	return &Builder{tmpl: tmpl, enc: enc, contextLength: contextLength}
}

// Build normalizes and validates one input line, renders the prompt, and
// encodes it. A prompt that leaves no room for a single new token fails
// with ErrTooLong; shorter-than-requested room is the generation loop's
// problem, not an error here.
func (b *Builder) Build(line string) (Prompt, error) {
	norm, err := Normalize(line)
	if err != nil {
		return Prompt{}, err
	}
	if err := b.checkCollision(norm); err != nil {
		return Prompt{}, err
	}

	text := b.tmpl.Render(norm)
	ids, err := b.enc.Encode(text)
	if err != nil {
		return Prompt{}, fmt.Errorf("encode prompt: %w", err)
	}
	if len(ids) >= b.contextLength {
		return Prompt{}, fmt.Errorf("%w: %d prompt tokens, context %d", ErrTooLong, len(ids), b.contextLength)
	}
	return Prompt{Line: norm, Text: text, IDs: ids}, nil
}

// Normalize collapses whitespace runs to single spaces and trims the ends,
// then applies the structural rejections.
func Normalize(line string) (string, error) {
	norm := strings.Join(strings.Fields(line), " ")
	if norm == "" {
		return "", fmt.Errorf("%w: empty after trimming", ErrBadInput)
	}
	if strings.Contains(norm, MarkerInput) || strings.Contains(norm, MarkerOutput) {
		return "", fmt.Errorf("%w: contains a template marker", ErrBadInput)
	}
	return norm, nil
}

func (b *Builder) checkCollision(norm string) error {
	for _, ex := range b.tmpl.examples {
		if norm == ex.Typo || norm == ex.Fix {
			return fmt.Errorf("%w: matches the few-shot example %q", ErrBadInput, ex.Typo)
		}
	}
	return nil
}
