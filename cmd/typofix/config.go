package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/typofix/internal/generate"
)

// Config represents the typofix configuration file
// (~/.config/typofix/config.yaml). Sampling fields are pointers so we
// can distinguish "not set" from zero values.
type Config struct {
	Model    string `yaml:"model"`
	CacheDir string `yaml:"cache_dir"`
	Endpoint string `yaml:"endpoint"`

	// Sampling defaults
	Temperature *float64 `yaml:"temperature"`
	MaxTokens   *int64   `yaml:"max_tokens"`
	Seed        *int64   `yaml:"seed"`

	// Output
	Output    string `yaml:"output"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Corrections points at a TOML word table layered over the built-in one.
	Corrections string `yaml:"corrections"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "typofix", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or doesn't parse.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyFixConfig applies config file defaults to the root command
// variables when the corresponding CLI flag was not explicitly set.
func applyFixConfig(c *cli.Command, cfg Config) {
	if cfg.Model != "" && !c.IsSet("model") && !c.IsSet("m") {
		modelID = cfg.Model
	}
	if cfg.CacheDir != "" && !c.IsSet("cache-dir") {
		cacheDir = cfg.CacheDir
	}
	if cfg.Endpoint != "" && !c.IsSet("endpoint") {
		endpoint = cfg.Endpoint
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") && !c.IsSet("t") {
		temperature = *cfg.Temperature
	}
	if cfg.MaxTokens != nil && !c.IsSet("max-tokens") {
		maxTokens = *cfg.MaxTokens
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
	if cfg.Output != "" && !c.IsSet("output") && !c.IsSet("o") {
		outputFmt = cfg.Output
	}
	applyLogConfig(c, cfg)
}

// applyInspectConfig applies the subset of config file defaults the
// inspect command understands.
func applyInspectConfig(c *cli.Command, cfg Config) {
	if cfg.Model != "" && !c.IsSet("model") && !c.IsSet("m") {
		modelID = cfg.Model
	}
	if cfg.CacheDir != "" && !c.IsSet("cache-dir") {
		cacheDir = cfg.CacheDir
	}
	if cfg.Endpoint != "" && !c.IsSet("endpoint") {
		endpoint = cfg.Endpoint
	}
	applyLogConfig(c, cfg)
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.Model != "" && !c.IsSet("model") && !c.IsSet("m") {
		modelID = cfg.Model
	}
	if cfg.CacheDir != "" && !c.IsSet("cache-dir") {
		cacheDir = cfg.CacheDir
	}
	if cfg.Endpoint != "" && !c.IsSet("endpoint") {
		endpoint = cfg.Endpoint
	}
	if cfg.Temperature != nil && !c.IsSet("temperature") && !c.IsSet("t") {
		temperature = *cfg.Temperature
	}
	if cfg.MaxTokens != nil && !c.IsSet("max-tokens") {
		maxTokens = *cfg.MaxTokens
	}
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
	applyLogConfig(c, cfg)
}

func applyLogConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") && !debug {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// userCorrector layers the corrections file named by the config over the
// built-in table. A nil return means the engine's default applies.
func userCorrector(cfg Config) (*generate.Corrector, error) {
	if cfg.Corrections == "" {
		return nil, nil
	}
	data, err := os.ReadFile(cfg.Corrections)
	if err != nil {
		return nil, fmt.Errorf("read corrections %s: %w", cfg.Corrections, err)
	}
	words, err := generate.ParseCorrections(data)
	if err != nil {
		return nil, fmt.Errorf("parse corrections %s: %w", cfg.Corrections, err)
	}
	return generate.DefaultCorrector().Merge(words)
}
