package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/typofix/internal/generate"
	"github.com/samcharles93/typofix/internal/resolver"
	"github.com/samcharles93/typofix/internal/runner"
)

var (
	stdinMode bool
	batchMode bool
	outputFmt string
	verbose   bool
)

func fixFlags() []cli.Flag {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "stdin",
			Usage:       "read lines to fix from stdin",
			Destination: &stdinMode,
		},
		&cli.BoolFlag{
			Name:        "batch",
			Usage:       "treat the input as a block of lines, skipping blanks",
			Destination: &batchMode,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "output format (text, json, verbose)",
			Value:       "text",
			Destination: &outputFmt,
		},
		&cli.BoolFlag{
			Name:        "verbose",
			Aliases:     []string{"v"},
			Usage:       "print per-line diagnostics and session traces",
			Destination: &verbose,
		},
	}
	flags = append(flags, samplingFlags()...)
	flags = append(flags, modelFlags()...)
	return append(flags, loggingFlags()...)
}

func runFix(ctx context.Context, cmd *cli.Command) error {
	cfg := LoadConfig()
	applyFixConfig(cmd, cfg)
	log := buildLogger()

	args := cmd.Args()
	if args.Len() > 1 {
		return cli.Exit("error: expected a single text argument (quote text containing spaces)", 1)
	}
	hasText := args.Len() == 1
	if hasText && stdinMode {
		return cli.Exit("error: pass text as an argument or use --stdin, not both", 1)
	}
	if !hasText && !stdinMode {
		return cli.Exit("error: nothing to fix: pass text as an argument or use --stdin", 1)
	}
	if temperature < 0 || temperature > 2 {
		return cli.Exit(fmt.Sprintf("error: temperature must be between 0 and 2, got %g", temperature), 1)
	}
	if maxTokens < 1 || maxTokens > 512 {
		return cli.Exit(fmt.Sprintf("error: max-tokens must be between 1 and 512, got %d", maxTokens), 1)
	}
	format, err := runner.ParseFormat(outputFmt)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	if verbose && format == runner.FormatText {
		format = runner.FormatVerbose
	}

	corr, err := userCorrector(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}

	loaded, err := resolver.Resolve(ctx, resolver.Options{
		ModelID:    modelID,
		LocalPath:  localPath,
		ConfigPath: configFile,
		CacheDir:   cacheDir,
		Endpoint:   endpoint,
		Offline:    offline,
		Progress:   true,
		Logger:     log,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}

	eng, err := generate.NewEngine(generate.EngineConfig{
		Model:     loaded.Model,
		Tokenizer: loaded.Tokenizer,
		Corrector: corr,
		Logger:    log,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	defer func() { _ = eng.Close() }()

	run, err := runner.New(runner.Config{
		Fixer: eng,
		Options: generate.Options{
			Temperature:  temperature,
			MaxNewTokens: int(maxTokens),
			Seed:         seed,
		},
		Format:   format,
		Progress: format != runner.FormatJSON,
		Logger:   log,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}

	switch {
	case batchMode && hasText:
		return run.Batch(ctx, args.First())
	case batchMode:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		return run.Batch(ctx, string(data))
	case stdinMode:
		return run.Stream(ctx, os.Stdin)
	default:
		return run.Single(ctx, args.First())
	}
}
