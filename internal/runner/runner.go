// Package runner drives the correction engine across the three input
// modes: a single literal, a line stream, and an up-front batch block.
// Every line gets its own isolated engine call; a failing line is
// reported and the remaining lines still run, with output order always
// matching input order.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/samcharles93/typofix/internal/generate"
	"github.com/samcharles93/typofix/internal/logger"
)

// Fixer is the slice of the engine the runner drives.
type Fixer interface {
	Fix(ctx context.Context, line string, opts generate.Options) (*generate.Result, error)
	ModelID() string
}

// Config wires a Runner.
type Config struct {
	Fixer   Fixer
	Options generate.Options
	Format  Format
	// Out receives formatted results, ErrOut diagnostics and traces.
	Out    io.Writer
	ErrOut io.Writer
	// Progress draws a per-line bar on ErrOut during batch runs.
	Progress bool
	Logger   logger.Logger
}

// Runner executes one invocation's worth of input.
type Runner struct {
	fixer    Fixer
	opts     generate.Options
	format   Format
	out      io.Writer
	errOut   io.Writer
	progress bool
	log      logger.Logger
}

func New(cfg Config) (*Runner, error) {
	if cfg.Fixer == nil {
		return nil, fmt.Errorf("runner: no fixer")
	}
	format := cfg.Format
	if format == "" {
		format = FormatText
	}
	switch format {
	case FormatText, FormatJSON, FormatVerbose:
	default:
		return nil, fmt.Errorf("runner: unknown format %q", format)
	}
	r := &Runner{
		fixer:    cfg.Fixer,
		opts:     cfg.Options,
		format:   format,
		out:      cfg.Out,
		errOut:   cfg.ErrOut,
		progress: cfg.Progress,
		log:      cfg.Logger,
	}
	if r.out == nil {
		r.out = os.Stdout
	}
	if r.errOut == nil {
		r.errOut = os.Stderr
	}
	if r.log == nil {
		r.log = logger.Nop()
	}
	// Verbose output reports the session trace, so ask the engine for it.
	if r.format == FormatVerbose {
		r.opts.Trace = true
	}
	return r, nil
}

// outcome is one processed line, success or failure.
type outcome struct {
	input string
	res   *generate.Result
	err   error
}

func (r *Runner) fixLine(ctx context.Context, line string) outcome {
	res, err := r.fixer.Fix(ctx, line, r.opts)
	if err != nil {
		r.log.Error("line failed", "input", line, "err", err)
		return outcome{input: line, err: err}
	}
	return outcome{input: line, res: res}
}

// Single fixes one literal argument. Any failure is the process failure.
func (r *Runner) Single(ctx context.Context, text string) error {
	res, err := r.fixer.Fix(ctx, text, r.opts)
	if err != nil {
		return err
	}
	o := outcome{input: text, res: res}
	switch r.format {
	case FormatText:
		fmt.Fprintln(r.out, res.Output)
	case FormatJSON:
		data, err := marshalASCII(o.record(r.fixer.ModelID()), true)
		if err != nil {
			return err
		}
		fmt.Fprintln(r.out, string(data))
	case FormatVerbose:
		writeVerbose(r.out, o, res.ModelID, false)
		writeTrace(r.errOut, res)
	}
	return nil
}

// Stream fixes every non-blank line read from in until EOF, printing each
// result as it lands. JSON output is one compact record per line.
func (r *Runner) Stream(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	// The default scanner cap would abort the whole stream on one
	// oversized line; with room to read it, the line just fails its
	// prompt budget check and the stream continues.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var n, failed int
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		n++
		o := r.fixLine(ctx, line)
		if o.err != nil {
			failed++
		}
		if err := r.emit(o); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return r.tally(n, failed)
}

// Batch fixes every non-blank line of an up-front block. The total is
// known, so batch runs can draw a progress bar; JSON output wraps all
// records in one document.
func (r *Runner) Batch(ctx context.Context, block string) error {
	var lines []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}

	var bar *progressbar.ProgressBar
	if r.progress && len(lines) > 0 {
		bar = progressbar.NewOptions(len(lines),
			progressbar.OptionSetWriter(r.errOut),
			progressbar.OptionSetDescription("fixing"),
			progressbar.OptionShowCount(),
		)
		defer bar.Close()
	}

	var (
		records []lineRecord
		failed  int
	)
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		o := r.fixLine(ctx, line)
		if o.err != nil {
			failed++
		}
		if r.format == FormatJSON {
			records = append(records, o.record(r.fixer.ModelID()))
		} else if err := r.emitBatchLine(o); err != nil {
			return err
		}
		if bar != nil {
			bar.Add(1)
		}
	}

	switch r.format {
	case FormatJSON:
		doc := batchRecord{
			Results:     records,
			ModelID:     r.fixer.ModelID(),
			Temperature: r.opts.Temperature,
			MaxTokens:   r.opts.MaxNewTokens,
		}
		if doc.Results == nil {
			doc.Results = []lineRecord{}
		}
		data, err := marshalASCII(doc, true)
		if err != nil {
			return err
		}
		fmt.Fprintln(r.out, string(data))
	case FormatVerbose:
		fmt.Fprintf(r.out, "Processed %d lines with model: %s\n", len(lines), r.fixer.ModelID())
	}
	return r.tally(len(lines), failed)
}

// emit prints one stream-mode outcome.
func (r *Runner) emit(o outcome) error {
	switch r.format {
	case FormatText:
		if o.err != nil {
			fmt.Fprintf(r.errOut, "error: %v\n", o.err)
			return nil
		}
		fmt.Fprintln(r.out, o.res.Output)
	case FormatJSON:
		data, err := marshalASCII(o.record(r.fixer.ModelID()), false)
		if err != nil {
			return err
		}
		fmt.Fprintln(r.out, string(data))
	case FormatVerbose:
		writeVerbose(r.out, o, r.fixer.ModelID(), true)
		writeTrace(r.errOut, o.res)
	}
	return nil
}

// emitBatchLine prints one batch-mode outcome for the non-JSON formats.
func (r *Runner) emitBatchLine(o outcome) error {
	switch r.format {
	case FormatText:
		if o.err != nil {
			fmt.Fprintf(r.errOut, "error: %v\n", o.err)
			return nil
		}
		fmt.Fprintln(r.out, o.res.Output)
	case FormatVerbose:
		writeVerbose(r.out, o, r.fixer.ModelID(), true)
		writeTrace(r.errOut, o.res)
	}
	return nil
}

// tally folds per-line failures into the invocation's exit status.
// An empty input is a success.
func (r *Runner) tally(n, failed int) error {
	if failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d lines failed", failed, n)
}
