package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/typofix/internal/logger"
)

var (
	modelID    string
	localPath  string
	configFile string
	cacheDir   string
	endpoint   string
	offline    bool

	temperature float64
	maxTokens   int64
	seed        int64

	logLevel  string
	logFormat string
	debug     bool
)

func modelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "hub model id (owner/name)",
			Value:       "mazhewitt/qwen-typo-fixer",
			Destination: &modelID,
		},
		&cli.StringFlag{
			Name:        "local-path",
			Usage:       "path to a local bundle directory (takes precedence over --model)",
			Destination: &localPath,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "explicit bundle config file, skipping discovery",
			Destination: &configFile,
		},
		&cli.StringFlag{
			Name:        "cache-dir",
			Usage:       "bundle cache directory",
			Destination: &cacheDir,
		},
		&cli.StringFlag{
			Name:        "endpoint",
			Usage:       "hub endpoint to download bundles from",
			Destination: &endpoint,
		},
		&cli.BoolFlag{
			Name:        "offline",
			Usage:       "never download; fail when the bundle is not cached",
			Destination: &offline,
		},
	}
}

func samplingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.Float64Flag{
			Name:        "temperature",
			Aliases:     []string{"t"},
			Usage:       "sampling temperature (0 always picks the most likely token)",
			Value:       0.1,
			Destination: &temperature,
		},
		&cli.Int64Flag{
			Name:        "max-tokens",
			Usage:       "max new tokens per line",
			Value:       50,
			Destination: &maxTokens,
		},
		&cli.Int64Flag{
			Name:        "seed",
			Usage:       "sampling seed (-1 seeds from process entropy)",
			Value:       -1,
			Destination: &seed,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// buildLogger turns the logging flags into a logger on stderr. Stdout
// stays reserved for correction output.
func buildLogger() logger.Logger {
	level := logger.ParseLevel(logLevel)
	if debug {
		level = slog.LevelDebug
	}
	switch logFormat {
	case "json":
		return logger.JSON(os.Stderr, level)
	case "text":
		return logger.Text(os.Stderr, level)
	default:
		return logger.Pretty(os.Stderr, level)
	}
}
