package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeUserConfig(t *testing.T, body string) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	dir := filepath.Join(home, "typofix")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("reads fields", func(t *testing.T) {
		writeUserConfig(t, `
model: someone/other-fixer
temperature: 0.7
max_tokens: 100
output: json
server_address: 0.0.0.0:9090
`)
		cfg := LoadConfig()
		if cfg.Model != "someone/other-fixer" {
			t.Fatalf("model: got %q", cfg.Model)
		}
		if cfg.Temperature == nil || *cfg.Temperature != 0.7 {
			t.Fatalf("temperature: got %v", cfg.Temperature)
		}
		if cfg.MaxTokens == nil || *cfg.MaxTokens != 100 {
			t.Fatalf("max_tokens: got %v", cfg.MaxTokens)
		}
		if cfg.Seed != nil {
			t.Fatalf("seed should stay unset, got %v", *cfg.Seed)
		}
		if cfg.Output != "json" {
			t.Fatalf("output: got %q", cfg.Output)
		}
		if cfg.ServerAddress != "0.0.0.0:9090" {
			t.Fatalf("server_address: got %q", cfg.ServerAddress)
		}
	})

	t.Run("missing file is zero config", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		cfg := LoadConfig()
		if cfg.Model != "" || cfg.Temperature != nil {
			t.Fatalf("expected zero config, got %+v", cfg)
		}
	})

	t.Run("malformed file is zero config", func(t *testing.T) {
		writeUserConfig(t, "model: [unclosed")
		cfg := LoadConfig()
		if cfg.Model != "" {
			t.Fatalf("expected zero config, got %+v", cfg)
		}
	})
}

func TestUserCorrector(t *testing.T) {
	t.Run("empty path means engine default", func(t *testing.T) {
		corr, err := userCorrector(Config{})
		if err != nil {
			t.Fatalf("userCorrector: %v", err)
		}
		if corr != nil {
			t.Fatalf("expected nil corrector for empty path")
		}
	})

	t.Run("merges over built-in table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "corrections.toml")
		body := "[words]\nwrold = \"world\"\nrecieve = \"obtain\"\n"
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write corrections: %v", err)
		}
		corr, err := userCorrector(Config{Corrections: path})
		if err != nil {
			t.Fatalf("userCorrector: %v", err)
		}
		if got := corr.Apply("wrold"); got != "world" {
			t.Fatalf("user rule: got %q", got)
		}
		// The user table overrides the built-in entry for the same word.
		if got := corr.Apply("recieve"); got != "obtain" {
			t.Fatalf("override: got %q", got)
		}
		// Built-in entries the user file does not touch still apply.
		if got := corr.Apply("definately"); got != "definitely" {
			t.Fatalf("built-in rule: got %q", got)
		}
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := userCorrector(Config{Corrections: filepath.Join(t.TempDir(), "nope.toml")})
		if err == nil {
			t.Fatalf("expected error for missing corrections file")
		}
	})
}
