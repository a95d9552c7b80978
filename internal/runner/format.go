package runner

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf16"
	"unicode/utf8"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/typofix/internal/generate"
)

// Format selects how results are printed.
type Format string

const (
	// FormatText prints the corrected line and nothing else.
	FormatText Format = "text"
	// FormatJSON prints one record per line with metadata, ASCII-safe.
	FormatJSON Format = "json"
	// FormatVerbose prints before/after pairs plus the session trace.
	FormatVerbose Format = "verbose"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON, FormatVerbose:
		return Format(s), nil
	case "":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json, or verbose)", s)
}

// lineRecord is the JSON shape of one processed line. Failed lines carry
// the error message instead of an output.
type lineRecord struct {
	Input           string `json:"input"`
	Output          string `json:"output,omitempty"`
	Error           string `json:"error,omitempty"`
	TokensGenerated int    `json:"tokens_generated"`
	ElapsedMS       int64  `json:"elapsed_ms"`
	ModelID         string `json:"model_id"`
}

// batchRecord wraps a whole batch in one document, mirroring the single
// record's metadata at the top level.
type batchRecord struct {
	Results     []lineRecord `json:"results"`
	ModelID     string       `json:"model_id"`
	Temperature float64      `json:"temperature"`
	MaxTokens   int          `json:"max_tokens"`
}

func (o outcome) record(modelID string) lineRecord {
	rec := lineRecord{Input: o.input, ModelID: modelID}
	if o.err != nil {
		rec.Error = o.err.Error()
		return rec
	}
	rec.Input = o.res.Input
	rec.Output = o.res.Output
	rec.TokensGenerated = o.res.Tokens
	rec.ElapsedMS = o.res.Elapsed.Milliseconds()
	rec.ModelID = o.res.ModelID
	return rec
}

// marshalASCII encodes v and rewrites every rune above 0x7F as a \uXXXX
// escape, so records survive ASCII-only pipes and log sinks.
func marshalASCII(v any, indent bool) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return nil, err
	}
	return escapeToASCII(data), nil
}

func escapeToASCII(data []byte) []byte {
	ascii := true
	for _, b := range data {
		if b >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return data
	}
	var out bytes.Buffer
	out.Grow(len(data))
	for _, r := range string(data) {
		switch {
		case r < utf8.RuneSelf:
			out.WriteByte(byte(r))
		case r <= 0xFFFF:
			fmt.Fprintf(&out, `\u%04x`, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, hi, lo)
		}
	}
	return out.Bytes()
}

// writeVerbose prints one before/after block. Batch blocks end with a
// rule so adjacent entries stay readable.
func writeVerbose(w io.Writer, o outcome, modelID string, rule bool) {
	if o.err != nil {
		fmt.Fprintf(w, "Input:  %s\n", o.input)
		fmt.Fprintf(w, "Error:  %v\n", o.err)
	} else {
		fmt.Fprintf(w, "Input:  %s\n", o.res.Input)
		fmt.Fprintf(w, "Output: %s\n", o.res.Output)
	}
	if rule {
		fmt.Fprintln(w, "---")
	} else {
		fmt.Fprintf(w, "Model:  %s\n", modelID)
	}
}

// writeTrace dumps the session event log and stage timings for one result.
func writeTrace(w io.Writer, res *generate.Result) {
	if res == nil {
		return
	}
	for _, ev := range res.Trace {
		if ev.Note != "" {
			fmt.Fprintf(w, "  %-8s %-24s %s\n", ev.Op, ev.Note, ev.Took)
			continue
		}
		fmt.Fprintf(w, "  %-8s %s\n", ev.Op, ev.Took)
	}
	fmt.Fprintf(w, "  %d tokens in %s (prefill %s, decode %s)\n",
		res.Tokens, res.Elapsed, res.Prefill, res.Decode)
	if res.Clamped {
		fmt.Fprintln(w, "  max new tokens clamped to the context window")
	}
}
