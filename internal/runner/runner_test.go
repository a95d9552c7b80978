package runner

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/typofix/internal/generate"
	"github.com/samcharles93/typofix/internal/session"
)

// stubFixer corrects "teh" to "the" and fails on demand, recording every
// call so tests can check isolation and ordering.
type stubFixer struct {
	id       string
	fail     map[string]error
	calls    []string
	lastOpts generate.Options
}

func (f *stubFixer) Fix(_ context.Context, line string, opts generate.Options) (*generate.Result, error) {
	f.calls = append(f.calls, line)
	f.lastOpts = opts
	if err := f.fail[line]; err != nil {
		return nil, err
	}
	input := strings.Join(strings.Fields(line), " ")
	res := &generate.Result{
		Input:   input,
		Output:  strings.ReplaceAll(input, "teh", "the"),
		Tokens:  3,
		Elapsed: 5 * time.Millisecond,
		ModelID: f.id,
	}
	if opts.Trace {
		res.Trace = []session.Event{{Op: "open"}, {Op: "close"}}
	}
	return res, nil
}

func (f *stubFixer) ModelID() string { return f.id }

func newTestRunner(t *testing.T, f *stubFixer, format Format) (*Runner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	r, err := New(Config{
		Fixer:   f,
		Options: generate.Options{Temperature: 0.1, MaxNewTokens: 50, Seed: -1},
		Format:  format,
		Out:     &out,
		ErrOut:  &errOut,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r, &out, &errOut
}

func TestSingleText(t *testing.T) {
	t.Parallel()
	r, out, _ := newTestRunner(t, &stubFixer{id: "stub"}, FormatText)

	if err := r.Single(context.Background(), "teh cat"); err != nil {
		t.Fatalf("Single: %v", err)
	}
	if got := out.String(); got != "the cat\n" {
		t.Fatalf("output %q, want %q", got, "the cat\n")
	}
}

func TestSingleFailureIsProcessFailure(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("device stalled")
	f := &stubFixer{id: "stub", fail: map[string]error{"bad": wantErr}}
	r, out, _ := newTestRunner(t, f, FormatText)

	err := r.Single(context.Background(), "bad")
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if out.Len() != 0 {
		t.Fatalf("failed single run still printed %q", out.String())
	}
}

func TestSingleJSONEscapesNonASCII(t *testing.T) {
	t.Parallel()
	r, out, _ := newTestRunner(t, &stubFixer{id: "stub"}, FormatJSON)

	if err := r.Single(context.Background(), "café teh"); err != nil {
		t.Fatalf("Single: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "caf\\u00e9") {
		t.Fatalf("output %q does not escape non-ASCII", got)
	}
	if strings.Contains(got, "é") {
		t.Fatalf("output %q carries a raw non-ASCII byte", got)
	}

	var rec lineRecord
	if err := json.Unmarshal(out.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Input != "café teh" || rec.Output != "café the" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.TokensGenerated != 3 || rec.ElapsedMS != 5 || rec.ModelID != "stub" {
		t.Fatalf("metadata = %+v", rec)
	}
}

func TestSingleVerbose(t *testing.T) {
	t.Parallel()
	f := &stubFixer{id: "stub"}
	r, out, errOut := newTestRunner(t, f, FormatVerbose)

	if err := r.Single(context.Background(), "teh  cat"); err != nil {
		t.Fatalf("Single: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Input:  teh cat\n", "Output: the cat\n", "Model:  stub\n"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output %q missing %q", got, want)
		}
	}
	if !f.lastOpts.Trace {
		t.Fatal("verbose run did not request the session trace")
	}
	diag := errOut.String()
	if !strings.Contains(diag, "open") || !strings.Contains(diag, "3 tokens in") {
		t.Fatalf("trace %q missing lifecycle events or timings", diag)
	}
}

func TestStreamSkipsBlanksAndPreservesOrder(t *testing.T) {
	t.Parallel()
	f := &stubFixer{id: "stub"}
	r, out, _ := newTestRunner(t, f, FormatText)

	in := strings.NewReader("teh a\n\n   \nteh b\nteh c\n")
	if err := r.Stream(context.Background(), in); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got, want := out.String(), "the a\nthe b\nthe c\n"; got != want {
		t.Fatalf("output %q, want %q", got, want)
	}
	if len(f.calls) != 3 {
		t.Fatalf("engine called %d times, want 3", len(f.calls))
	}
}

func TestStreamIsolatesFailures(t *testing.T) {
	t.Parallel()
	f := &stubFixer{id: "stub", fail: map[string]error{"bad": errors.New("device stalled")}}
	r, out, errOut := newTestRunner(t, f, FormatText)

	err := r.Stream(context.Background(), strings.NewReader("teh a\nbad\nteh b\n"))
	if err == nil || !strings.Contains(err.Error(), "1 of 3 lines failed") {
		t.Fatalf("err = %v, want the failure tally", err)
	}
	if got, want := out.String(), "the a\nthe b\n"; got != want {
		t.Fatalf("successful lines printed %q, want %q", got, want)
	}
	if !strings.Contains(errOut.String(), "device stalled") {
		t.Fatalf("stderr %q does not report the failed line", errOut.String())
	}
}

func TestStreamEmptyInputSucceeds(t *testing.T) {
	t.Parallel()
	r, out, _ := newTestRunner(t, &stubFixer{id: "stub"}, FormatText)

	if err := r.Stream(context.Background(), strings.NewReader("\n   \n")); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if out.Len() != 0 {
		t.Fatalf("empty stream printed %q", out.String())
	}
}

func TestStreamJSONRecordsFailures(t *testing.T) {
	t.Parallel()
	f := &stubFixer{id: "stub", fail: map[string]error{"bad": errors.New("device stalled")}}
	r, out, _ := newTestRunner(t, f, FormatJSON)

	err := r.Stream(context.Background(), strings.NewReader("teh a\nbad\n"))
	if err == nil {
		t.Fatal("want failure tally")
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d records, want 2: %q", len(lines), out.String())
	}
	var first, second lineRecord
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("record 0: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("record 1: %v", err)
	}
	if first.Output != "the a" || first.Error != "" {
		t.Fatalf("first record = %+v", first)
	}
	if second.Input != "bad" || second.Error == "" || second.Output != "" {
		t.Fatalf("second record = %+v", second)
	}
}

func TestBatchJSONWrapsResults(t *testing.T) {
	t.Parallel()
	r, out, _ := newTestRunner(t, &stubFixer{id: "stub"}, FormatJSON)

	if err := r.Batch(context.Background(), "teh a\r\n\nteh b\n"); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	var doc batchRecord
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(doc.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(doc.Results))
	}
	if doc.Results[0].Output != "the a" || doc.Results[1].Output != "the b" {
		t.Fatalf("results out of order: %+v", doc.Results)
	}
	if doc.ModelID != "stub" || doc.Temperature != 0.1 || doc.MaxTokens != 50 {
		t.Fatalf("metadata = %+v", doc)
	}
}

func TestBatchEmptyBlockEmitsEmptyResults(t *testing.T) {
	t.Parallel()
	r, out, _ := newTestRunner(t, &stubFixer{id: "stub"}, FormatJSON)

	if err := r.Batch(context.Background(), "\n  \n"); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	var doc batchRecord
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if doc.Results == nil || len(doc.Results) != 0 {
		t.Fatalf("results = %#v, want empty slice", doc.Results)
	}
}

func TestBatchVerboseFooter(t *testing.T) {
	t.Parallel()
	r, out, _ := newTestRunner(t, &stubFixer{id: "stub"}, FormatVerbose)

	if err := r.Batch(context.Background(), "teh a\nteh b\n"); err != nil {
		t.Fatalf("Batch: %v", err)
	}
	got := out.String()
	if strings.Count(got, "---") != 2 {
		t.Fatalf("output %q missing the per-line rules", got)
	}
	if !strings.Contains(got, "Processed 2 lines with model: stub\n") {
		t.Fatalf("output %q missing the footer", got)
	}
}

func TestBatchStopsOnCancel(t *testing.T) {
	t.Parallel()
	f := &stubFixer{id: "stub"}
	r, _, _ := newTestRunner(t, f, FormatText)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Batch(ctx, "teh a\n"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("canceled batch still called the engine %d times", len(f.calls))
	}
}

func TestParseFormat(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"text", FormatText, false},
		{"json", FormatJSON, false},
		{"verbose", FormatVerbose, false},
		{"", FormatText, false},
		{"xml", "", true},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseFormat(%q): want error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseFormat(%q) = %q, %v, want %q", tc.in, got, err, tc.want)
		}
	}
}

func TestEscapeToASCII(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"ascii passthrough", `{"a":"b"}`, `{"a":"b"}`},
		{"latin", "naïve", "na\\u00efve"},
		{"bmp symbol", "☃", "\\u2603"},
		{"astral pair", "🎉", "\\ud83c\\udf89"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := string(escapeToASCII([]byte(tc.in))); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}); err == nil {
		t.Fatal("want error for missing fixer")
	}
	if _, err := New(Config{Fixer: &stubFixer{id: "stub"}, Format: "xml"}); err == nil {
		t.Fatal("want error for unknown format")
	}
}
