package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/typofix/internal/resolver"
)

type bundleSummary struct {
	ModelID       string            `json:"model_id"`
	ModelType     string            `json:"model_type"`
	Dir           string            `json:"dir"`
	BatchSize     int               `json:"batch_size"`
	ContextLength int               `json:"context_length"`
	HiddenSize    int               `json:"hidden_size"`
	VocabSize     int               `json:"vocab_size"`
	ShardWidths   []int             `json:"shard_widths"`
	EOSID         int               `json:"eos_token_id"`
	Components    map[string]string `json:"components"`
}

func inspectCmd() *cli.Command {
	var asJSON bool

	flags := append(modelFlags(), loggingFlags()...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "json",
		Usage:       "print the summary as JSON",
		Destination: &asJSON,
	})

	return &cli.Command{
		Name:  "inspect",
		Usage: "Open a model bundle and print its geometry and components",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg := LoadConfig()
			applyInspectConfig(cmd, cfg)
			log := buildLogger()

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
			defer func() { _ = loaded.Model.Close() }()

			b := loaded.Bundle
			sum := bundleSummary{
				ModelID:       b.ModelID,
				ModelType:     b.ModelType,
				Dir:           b.Dir,
				BatchSize:     b.Spec.BatchSize,
				ContextLength: b.Spec.ContextLength,
				HiddenSize:    b.Spec.HiddenSize,
				VocabSize:     b.Spec.VocabSize,
				ShardWidths:   b.Spec.ShardWidths,
				EOSID:         loaded.Tokenizer.EOSID(),
				Components:    b.Components,
			}

			if asJSON {
				data, err := json.MarshalIndent(sum, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(data))
				return nil
			}

			printBundleSummary(sum)
			return nil
		},
	}
}

func printBundleSummary(s bundleSummary) {
	section("Bundle")
	row("model_id", s.ModelID)
	row("model_type", s.ModelType)
	row("dir", s.Dir)

	section("Geometry")
	rowInt("batch_size", s.BatchSize)
	rowInt("context_length", s.ContextLength)
	rowInt("hidden_size", s.HiddenSize)
	rowInt("vocab_size", s.VocabSize)
	row("logits_shards", formatWidths(s.ShardWidths))
	rowInt("eos_token_id", s.EOSID)

	section("Components")
	names := make([]string, 0, len(s.Components))
	for name := range s.Components {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		row(name, filepath.Base(s.Components[name]))
	}
}

// formatWidths compresses the usual uniform split into "N x W" and the
// short-last split into "N x W + R".
func formatWidths(widths []int) string {
	if len(widths) == 0 {
		return ""
	}
	uniform := true
	for _, w := range widths[:len(widths)-1] {
		if w != widths[0] {
			uniform = false
			break
		}
	}
	last := widths[len(widths)-1]
	if uniform && last == widths[0] {
		return fmt.Sprintf("%d x %d", len(widths), widths[0])
	}
	if uniform {
		return fmt.Sprintf("%d x %d + %d", len(widths)-1, widths[0], last)
	}
	parts := make([]string, len(widths))
	for i, w := range widths {
		parts[i] = fmt.Sprintf("%d", w)
	}
	return strings.Join(parts, ", ")
}

func section(title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Printf("\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(label, value string) {
	if value == "" {
		return
	}
	fmt.Printf("%-16s %s\n", label+":", value)
}

func rowInt(label string, v int) {
	if v == 0 {
		return
	}
	row(label, fmt.Sprintf("%d", v))
}
