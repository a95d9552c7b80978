package generate

import (
	_ "embed"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed corrections.toml
var defaultCorrectionsTOML []byte

// correctionsFile is the on-disk schema: one [words] table mapping
// misspellings to their corrections.
type correctionsFile struct {
	Words map[string]string `toml:"words"`
}

// ParseCorrections reads a corrections table in TOML form.
func ParseCorrections(data []byte) (map[string]string, error) {
	var f correctionsFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse corrections: %w", err)
	}
	return f.Words, nil
}

type rule struct {
	re  *regexp.Regexp
	rep string
}

// Corrector applies deterministic word fixes to extracted text. Matches
// are whole-word and case-insensitive; replacements keep the table's
// casing.
type Corrector struct {
	words map[string]string
	rules []rule
}

// NewCorrector compiles a corrections table. Rule order follows sorted
// keys so two correctors over the same table behave identically.
func NewCorrector(words map[string]string) (*Corrector, error) {
	c := &Corrector{words: maps.Clone(words)}
	for _, word := range slices.Sorted(maps.Keys(words)) {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("correction %q: %w", word, err)
		}
		c.rules = append(c.rules, rule{re: re, rep: words[word]})
	}
	return c, nil
}

// Merge layers extra corrections over c, overriding on key clashes.
func (c *Corrector) Merge(extra map[string]string) (*Corrector, error) {
	merged := maps.Clone(c.words)
	if merged == nil {
		merged = make(map[string]string, len(extra))
	}
	maps.Copy(merged, extra)
	return NewCorrector(merged)
}

var loadDefault = sync.OnceValue(func() *Corrector {
	words, err := ParseCorrections(defaultCorrectionsTOML)
	if err != nil {
		panic("generate: embedded corrections table: " + err.Error())
	}
	c, err := NewCorrector(words)
	if err != nil {
		panic("generate: embedded corrections table: " + err.Error())
	}
	return c
})

// DefaultCorrector returns the built-in corrections table.
func DefaultCorrector() *Corrector { return loadDefault() }

// Sanitize trims text, strips one pair of matching surrounding quotes, and
// drops trailing commentary parentheticals.
func Sanitize(text string) string {
	s := strings.TrimSpace(text)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	if i := strings.Index(s, "(Note:"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	} else if i := strings.Index(s, "("); i > 8 {
		// A parenthetical this far into the line is commentary, not content.
		s = strings.TrimSpace(s[:i])
	}
	return s
}

// Apply sanitizes text and runs every correction over it.
func (c *Corrector) Apply(text string) string {
	s := Sanitize(text)
	for _, r := range c.rules {
		s = r.re.ReplaceAllString(s, r.rep)
	}
	return strings.TrimSpace(s)
}
