package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/samcharles93/typofix/internal/backend"
	"github.com/samcharles93/typofix/internal/logger"
)

// fetchBundle downloads a bundle into dir: the config first, then the
// tokenizer and every component file the config names. Files already in
// place are kept, so an interrupted download resumes where it stopped.
func fetchBundle(ctx context.Context, opts Options, dir string, log logger.Logger) error {
	endpoint := strings.TrimSuffix(opts.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	cl := &http.Client{}

	log.Info("fetching model bundle", "id", opts.ModelID, "endpoint", endpoint)

	if err := fetchFile(ctx, cl, endpoint, opts.ModelID, dir, "config.json", true, opts.Progress); err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return err
	}
	cfg, err := parseBundleConfig(data)
	if err != nil {
		return err
	}

	// Gate on the model type before pulling the heavy component files.
	if typ := effectiveType(cfg); !backend.Supported(typ) {
		return fmt.Errorf("bundle declares model type %q with no backend in this build (available: %s)", typ, backend.Available())
	}

	names := []string{"tokenizer.json", "tokenizer_config.json"}
	seen := map[string]bool{}
	for _, comp := range cfg.Components {
		if comp.FilePath == "" {
			continue
		}
		name := filepath.Base(comp.FilePath)
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names[2:])

	for _, name := range names {
		required := name != "tokenizer_config.json"
		if err := fetchFile(ctx, cl, endpoint, opts.ModelID, dir, name, required, opts.Progress); err != nil {
			return err
		}
	}
	return nil
}

// fetchFile downloads one file under the hub's resolve layout into dir,
// atomically via a temp file. Optional files tolerate a 404.
func fetchFile(ctx context.Context, cl *http.Client, endpoint, id, dir, name string, required, progress bool) error {
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		return nil
	}

	url := endpoint + "/" + id + "/resolve/main/" + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := cl.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && !required {
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: %s", name, resp.Status)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	var w io.Writer = tmp
	if progress && resp.ContentLength > 0 {
		bar := progressbar.DefaultBytes(resp.ContentLength, name)
		defer bar.Close()
		w = io.MultiWriter(tmp, bar)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("fetch %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
