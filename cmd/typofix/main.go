package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	app := &cli.Command{
		Name:      "typofix",
		Usage:     "Fix typos with a fine-tuned causal language model",
		ArgsUsage: "[text]",
		Flags:     fixFlags(),
		Action:    runFix,
		Commands: []*cli.Command{
			serveCmd(),
			inspectCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
