// Package resolver turns a model reference into a ready bundle: a local
// directory used as-is, or a hub id resolved through the on-disk cache
// with an optional download. What it hands back is opened end to end,
// with validated geometry, re-based component paths, and a loaded
// tokenizer.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/typofix/internal/backend"
	"github.com/samcharles93/typofix/internal/backend/reference"
	"github.com/samcharles93/typofix/internal/logger"
	"github.com/samcharles93/typofix/internal/tokenizer"
)

// DefaultEndpoint is the hub the published bundles live on.
const DefaultEndpoint = "https://huggingface.co"

// Options select which bundle to load and how far to go to get it.
type Options struct {
	// ModelID is the hub id (owner/name). Ignored when LocalPath is set.
	ModelID string
	// LocalPath points at a bundle directory and takes precedence over
	// ModelID.
	LocalPath string
	// ConfigPath names an explicit bundle config, skipping discovery.
	ConfigPath string
	// CacheDir overrides the default per-user cache location.
	CacheDir string
	// Endpoint overrides DefaultEndpoint, mainly for tests.
	Endpoint string
	// Offline forbids network access; a cache miss becomes an error.
	Offline bool
	// Progress draws per-file download bars on stderr.
	Progress bool
	Logger   logger.Logger
}

// LoadError wraps every failure on the way to a usable model. It is fatal
// for the invocation; there is nothing to retry per line.
type LoadError struct {
	ModelID string
	Err     error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load model %s: %v", e.ModelID, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// Loaded is a bundle opened end to end.
type Loaded struct {
	Model     backend.Model
	Tokenizer tokenizer.Tokenizer
	Bundle    backend.Bundle
}

// Resolve loads the bundle Options point at.
func Resolve(ctx context.Context, opts Options) (*Loaded, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	name := opts.ModelID
	if opts.LocalPath != "" {
		name = opts.LocalPath
	}
	fail := func(err error) (*Loaded, error) {
		return nil, &LoadError{ModelID: name, Err: err}
	}

	dir, err := bundleDir(ctx, opts, log)
	if err != nil {
		return fail(err)
	}

	cfgPath, err := findConfig(dir, opts.ConfigPath)
	if err != nil {
		return fail(err)
	}

	bundle, err := loadBundle(dir, cfgPath, opts.ModelID)
	if err != nil {
		return fail(err)
	}

	tok, err := tokenizer.LoadFile(filepath.Join(dir, "tokenizer.json"))
	if err != nil {
		return fail(fmt.Errorf("tokenizer: %w", err))
	}

	m, err := backend.Open(bundle)
	if err != nil {
		return fail(err)
	}

	log.Info("model ready", "id", bundle.ModelID, "type", bundle.ModelType, "dir", dir)
	return &Loaded{Model: m, Tokenizer: tok, Bundle: bundle}, nil
}

// bundleDir decides which directory holds the bundle, downloading into the
// cache when the id is not there yet.
func bundleDir(ctx context.Context, opts Options, log logger.Logger) (string, error) {
	if opts.LocalPath != "" {
		info, err := os.Stat(opts.LocalPath)
		if err != nil {
			return "", err
		}
		if !info.IsDir() {
			return "", fmt.Errorf("%s is not a directory", opts.LocalPath)
		}
		return opts.LocalPath, nil
	}
	if opts.ModelID == "" {
		return "", errors.New("no model id or local path given")
	}

	cache := opts.CacheDir
	if cache == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("cache dir: %w", err)
		}
		cache = filepath.Join(base, "typofix")
	}
	dir := filepath.Join(cache, "models", strings.ReplaceAll(opts.ModelID, "/", "--"))
	if _, err := os.Stat(filepath.Join(dir, "config.json")); err == nil {
		return dir, nil
	}
	if opts.Offline {
		return "", fmt.Errorf("model %s is not cached and offline mode is on", opts.ModelID)
	}
	if err := fetchBundle(ctx, opts, dir, log); err != nil {
		return "", err
	}
	return dir, nil
}

// findConfig picks the bundle config: the explicit one, then config.json
// inside the bundle, then discovery under ./configs.
func findConfig(dir, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("bundle config: %w", err)
		}
		return explicit, nil
	}
	local := filepath.Join(dir, "config.json")
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}
	if found, ok := discoverConfig(dir); ok {
		return found, nil
	}
	return "", fmt.Errorf("no bundle config for %s: pass --config, add config.json to the bundle, or drop one under configs/", dir)
}

// discoverConfig scans ./configs for a json config naming this bundle, the
// way the published CLI bundles ship theirs next to the model directory.
func discoverConfig(dir string) (string, bool) {
	base := filepath.Base(filepath.Clean(dir))
	entries, err := os.ReadDir("configs")
	if err != nil {
		return "", false
	}
	for _, ent := range entries {
		name := ent.Name()
		if ent.IsDir() || !strings.HasSuffix(name, ".json") || !strings.Contains(name, "config") {
			continue
		}
		stem := strings.TrimSuffix(strings.TrimSuffix(name, ".json"), "_config")
		if strings.Contains(name, base) || (stem != "" && strings.Contains(base, stem)) {
			return filepath.Join("configs", name), true
		}
	}
	return "", false
}

func effectiveType(cfg *bundleConfig) string {
	typ := backend.Normalize(cfg.ModelInfo.ModelType)
	if typ == "" {
		typ = reference.Type
	}
	return typ
}
