package resolver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/typofix/internal/backend"
)

// defaultLogitsParts is the shard count of the published bundles when the
// config does not spell the head outputs out.
const defaultLogitsParts = 16

// bundleConfig mirrors the config.json the bundle packaging tool emits.
type bundleConfig struct {
	ModelInfo  modelInfo                  `json:"model_info"`
	Shapes     bundleShapes               `json:"shapes"`
	Components map[string]componentConfig `json:"components"`
	Naming     map[string]string          `json:"naming"`
}

type modelInfo struct {
	ModelID   string `json:"model_id"`
	ModelType string `json:"model_type"`
}

type bundleShapes struct {
	BatchSize     int `json:"batch_size"`
	ContextLength int `json:"context_length"`
	HiddenSize    int `json:"hidden_size"`
	VocabSize     int `json:"vocab_size"`
}

type componentConfig struct {
	FilePath  string           `json:"file_path"`
	Inputs    map[string][]int `json:"inputs"`
	Outputs   map[string][]int `json:"outputs"`
	Functions []string         `json:"functions"`
}

func parseBundleConfig(data []byte) (*bundleConfig, error) {
	var cfg bundleConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse bundle config: %w", err)
	}
	return &cfg, nil
}

// loadBundle reads one config file and assembles the backend.Bundle:
// geometry validated, component paths re-based where the recorded
// locations no longer exist.
func loadBundle(dir, cfgPath, fallbackID string) (backend.Bundle, error) {
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return backend.Bundle{}, fmt.Errorf("bundle config: %w", err)
	}
	cfg, err := parseBundleConfig(data)
	if err != nil {
		return backend.Bundle{}, fmt.Errorf("%s: %w", filepath.Base(cfgPath), err)
	}

	id := cfg.ModelInfo.ModelID
	if id == "" {
		id = fallbackID
	}
	if id == "" {
		id = filepath.Base(filepath.Clean(dir))
	}

	spec := backend.Spec{
		BatchSize:     cfg.Shapes.BatchSize,
		ContextLength: cfg.Shapes.ContextLength,
		HiddenSize:    cfg.Shapes.HiddenSize,
		VocabSize:     cfg.Shapes.VocabSize,
		ShardWidths:   shardWidths(cfg),
	}
	if spec.BatchSize == 0 {
		spec.BatchSize = 1
	}
	if err := spec.Validate(); err != nil {
		return backend.Bundle{}, fmt.Errorf("bundle geometry: %w", err)
	}

	comps := make(map[string]string, len(cfg.Components))
	for name, comp := range cfg.Components {
		if comp.FilePath == "" {
			continue
		}
		comps[name] = adjustPath(comp.FilePath, dir)
	}

	return backend.Bundle{
		Dir:        dir,
		ModelID:    id,
		ModelType:  effectiveType(cfg),
		Spec:       spec,
		Components: comps,
	}, nil
}

// shardWidths recovers the logits shard layout from the head component's
// declared outputs (logits1..logitsN, last dim is the width). Bundles that
// do not declare them get the published even split.
func shardWidths(cfg *bundleConfig) []int {
	type part struct{ idx, width int }
	var parts []part
	for name, dims := range cfg.Components[backend.ComponentHead].Outputs {
		idx, ok := logitsIndex(name)
		if !ok || len(dims) == 0 {
			continue
		}
		parts = append(parts, part{idx: idx, width: dims[len(dims)-1]})
	}
	if len(parts) == 0 {
		return splitVocab(cfg.Shapes.VocabSize, defaultLogitsParts)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].idx < parts[j].idx })
	widths := make([]int, len(parts))
	for i, p := range parts {
		widths[i] = p.width
	}
	return widths
}

func logitsIndex(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "logits")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// splitVocab distributes vocab over parts the way the packaging tool does:
// every shard ceil(vocab/parts) wide except a short last one.
func splitVocab(vocab, parts int) []int {
	if parts <= 0 {
		parts = 1
	}
	width := (vocab + parts - 1) / parts
	widths := make([]int, parts)
	rest := vocab
	for i := 0; i < parts-1; i++ {
		widths[i] = width
		rest -= width
	}
	widths[parts-1] = rest
	return widths
}

// adjustPath re-bases a recorded component path onto the bundle dir when
// the recorded location does not exist; bundles move after packaging.
func adjustPath(fp, dir string) string {
	if _, err := os.Stat(fp); err == nil {
		return fp
	}
	candidate := filepath.Join(dir, filepath.Base(fp))
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return fp
}
