package resolver

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/typofix/internal/backend"
)

const testTokenizerJSON = `{"model":{"type":"BPE","vocab":{"a":0,"b":1},"merges":[]},"added_tokens":[{"id":2,"content":"<|endoftext|>","special":true}]}`

func testConfig(id string) *bundleConfig {
	return &bundleConfig{
		ModelInfo: modelInfo{ModelID: id, ModelType: "reference"},
		Shapes:    bundleShapes{BatchSize: 1, ContextLength: 32, HiddenSize: 8, VocabSize: 24},
		Components: map[string]componentConfig{
			backend.ComponentEmbeddings: {FilePath: "embeddings.bin"},
			backend.ComponentPrefill:    {FilePath: "prefill.bin"},
			backend.ComponentDecode:     {FilePath: "decode.bin"},
			backend.ComponentHead: {
				FilePath: "head.bin",
				Outputs: map[string][]int{
					"logits1": {1, 1, 8},
					"logits2": {1, 1, 8},
					"logits3": {1, 1, 8},
				},
			},
		},
	}
}

func writeBundle(t *testing.T, dir string, cfg *bundleConfig) {
	t.Helper()
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte(testTokenizerJSON), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveLocalBundle(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, testConfig("ref/test"))

	got, err := Resolve(context.Background(), Options{LocalPath: dir, Offline: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer got.Model.Close()

	if got.Bundle.ModelID != "ref/test" {
		t.Fatalf("ModelID = %q", got.Bundle.ModelID)
	}
	if got.Bundle.ModelType != "reference" {
		t.Fatalf("ModelType = %q", got.Bundle.ModelType)
	}
	if want := []int{8, 8, 8}; !slices.Equal(got.Bundle.Spec.ShardWidths, want) {
		t.Fatalf("ShardWidths = %v, want %v", got.Bundle.Spec.ShardWidths, want)
	}
	if got.Tokenizer.EOSID() != 2 {
		t.Fatalf("EOSID = %d, want 2", got.Tokenizer.EOSID())
	}

	st, err := got.Model.NewState()
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	st.Close()
}

func TestResolveLocalPathWinsOverModelID(t *testing.T) {
	dir := t.TempDir()
	writeBundle(t, dir, testConfig("local/bundle"))

	got, err := Resolve(context.Background(), Options{
		LocalPath: dir,
		ModelID:   "owner/something-else",
		Offline:   true,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer got.Model.Close()
	if got.Bundle.ModelID != "local/bundle" {
		t.Fatalf("ModelID = %q, want the local bundle's", got.Bundle.ModelID)
	}
}

func TestResolveAdjustsComponentPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig("ref/adjust")
	cfg.Components[backend.ComponentEmbeddings] = componentConfig{
		FilePath: "/packaged/elsewhere/embeddings.bin",
	}
	writeBundle(t, dir, cfg)
	if err := os.WriteFile(filepath.Join(dir, "embeddings.bin"), []byte("w"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Resolve(context.Background(), Options{LocalPath: dir, Offline: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer got.Model.Close()

	want := filepath.Join(dir, "embeddings.bin")
	if got.Bundle.Components[backend.ComponentEmbeddings] != want {
		t.Fatalf("component path = %q, want re-based %q", got.Bundle.Components[backend.ComponentEmbeddings], want)
	}
}

func TestResolveExplicitConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte(testTokenizerJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	cfgDir := t.TempDir()
	cfgPath := filepath.Join(cfgDir, "ref_config.json")
	data, err := json.Marshal(testConfig("ref/explicit"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfgPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Resolve(context.Background(), Options{LocalPath: dir, ConfigPath: cfgPath, Offline: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer got.Model.Close()
	if got.Bundle.ModelID != "ref/explicit" {
		t.Fatalf("ModelID = %q", got.Bundle.ModelID)
	}

	_, err = Resolve(context.Background(), Options{
		LocalPath:  dir,
		ConfigPath: filepath.Join(cfgDir, "missing.json"),
		Offline:    true,
	})
	if err == nil {
		t.Fatal("want error for missing explicit config")
	}
	// The cause stays reachable through the load error.
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("error %v does not unwrap to fs.ErrNotExist", err)
	}
}

func TestResolveDiscoversConfigsDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "mybundle")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte(testTokenizerJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "configs"), 0o755); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(testConfig("ref/discovered"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "configs", "mybundle_config.json"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Chdir(root)
	got, err := Resolve(context.Background(), Options{LocalPath: dir, Offline: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	defer got.Model.Close()
	if got.Bundle.ModelID != "ref/discovered" {
		t.Fatalf("ModelID = %q", got.Bundle.ModelID)
	}
}

func TestResolveNoConfigFails(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte(testTokenizerJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Resolve(context.Background(), Options{LocalPath: dir, Offline: true})
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("want *LoadError, got %v", err)
	}
	if !strings.Contains(err.Error(), "no bundle config") {
		t.Fatalf("error %v does not name the missing config", err)
	}
}

func TestResolveOfflineCacheMiss(t *testing.T) {
	_, err := Resolve(context.Background(), Options{
		ModelID:  "owner/model",
		CacheDir: t.TempDir(),
		Offline:  true,
	})
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("want *LoadError, got %v", err)
	}
	if le.ModelID != "owner/model" {
		t.Fatalf("LoadError.ModelID = %q", le.ModelID)
	}
	if !strings.Contains(err.Error(), "offline") {
		t.Fatalf("error %v does not mention offline mode", err)
	}
}

// hubServer serves hub-layout file requests and records which names were
// asked for.
func hubServer(t *testing.T, id string, files map[string]string) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var asked []string
	prefix := "/" + id + "/resolve/main/"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := strings.CutPrefix(r.URL.Path, prefix)
		if !ok {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		asked = append(asked, name)
		mu.Unlock()
		body, ok := files[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), asked...)
	}
}

func TestResolveDownloadsAndCaches(t *testing.T) {
	cfgBytes, err := json.Marshal(testConfig("owner/model"))
	if err != nil {
		t.Fatal(err)
	}
	srv, asked := hubServer(t, "owner/model", map[string]string{
		"config.json":    string(cfgBytes),
		"tokenizer.json": testTokenizerJSON,
		"embeddings.bin": "e",
		"prefill.bin":    "p",
		"decode.bin":     "d",
		"head.bin":       "h",
	})

	cache := t.TempDir()
	got, err := Resolve(context.Background(), Options{
		ModelID:  "owner/model",
		CacheDir: cache,
		Endpoint: srv.URL,
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	got.Model.Close()

	dir := filepath.Join(cache, "models", "owner--model")
	for _, name := range []string{"config.json", "tokenizer.json", "embeddings.bin", "head.bin"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("cached %s: %v", name, err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, ent := range entries {
		if strings.Contains(ent.Name(), ".part-") {
			t.Fatalf("temp file left behind: %s", ent.Name())
		}
	}
	before := len(asked())

	// Second resolve must come straight from the cache.
	again, err := Resolve(context.Background(), Options{
		ModelID:  "owner/model",
		CacheDir: cache,
		Offline:  true,
	})
	if err != nil {
		t.Fatalf("cached Resolve: %v", err)
	}
	again.Model.Close()
	if after := len(asked()); after != before {
		t.Fatalf("cache hit still fetched: %d -> %d requests", before, after)
	}
}

func TestResolveGatesOnModelTypeBeforeComponents(t *testing.T) {
	cfg := testConfig("owner/exotic")
	cfg.ModelInfo.ModelType = "qwen"
	cfgBytes, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	srv, asked := hubServer(t, "owner/exotic", map[string]string{
		"config.json": string(cfgBytes),
	})

	_, err = Resolve(context.Background(), Options{
		ModelID:  "owner/exotic",
		CacheDir: t.TempDir(),
		Endpoint: srv.URL,
	})
	if err == nil {
		t.Fatal("want error for unsupported model type")
	}
	if !strings.Contains(err.Error(), `model type "qwen"`) {
		t.Fatalf("error %v does not name the type", err)
	}
	for _, name := range asked() {
		if strings.HasSuffix(name, ".bin") {
			t.Fatalf("component %s fetched despite unsupported type", name)
		}
	}
}
