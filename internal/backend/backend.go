// Package backend defines the capability surface a model backend provides
// to the generation engine: the four accelerator components (token
// embedding, context prefill, incremental decode, vocabulary projection)
// reduced to verbs on an opaque per-request state.
package backend

import "fmt"

// Component names as they appear in a bundle config.
const (
	ComponentEmbeddings = "embeddings"
	ComponentPrefill    = "ffn_prefill"
	ComponentDecode     = "ffn_infer"
	ComponentHead       = "lm_head"
)

// Spec is the fixed tensor geometry of a loaded bundle. It never changes
// after load; sessions validate it once at open and then trust it.
type Spec struct {
	BatchSize     int
	ContextLength int
	HiddenSize    int
	VocabSize     int
	// ShardWidths lists the width of each logits shard the projection
	// component emits, in emission order. The widths must sum to VocabSize.
	ShardWidths []int
}

// Parts returns the number of logits shards the head emits.
func (s Spec) Parts() int { return len(s.ShardWidths) }

// Validate rejects geometry the engine cannot run against.
func (s Spec) Validate() error {
	if s.BatchSize <= 0 {
		return fmt.Errorf("batch size %d, want > 0", s.BatchSize)
	}
	if s.ContextLength <= 0 {
		return fmt.Errorf("context length %d, want > 0", s.ContextLength)
	}
	if s.HiddenSize <= 0 {
		return fmt.Errorf("hidden size %d, want > 0", s.HiddenSize)
	}
	if s.VocabSize <= 0 {
		return fmt.Errorf("vocab size %d, want > 0", s.VocabSize)
	}
	if len(s.ShardWidths) == 0 {
		return fmt.Errorf("no logits shards declared")
	}
	total := 0
	for i, w := range s.ShardWidths {
		if w <= 0 {
			return fmt.Errorf("shard %d width %d, want > 0", i, w)
		}
		total += w
	}
	if total != s.VocabSize {
		return fmt.Errorf("shard widths sum to %d, vocab size is %d", total, s.VocabSize)
	}
	return nil
}

// Hidden is one position's hidden-state row, length Spec.HiddenSize.
type Hidden []float32

// Shard is one slice of a vocabulary logits row.
type Shard []float32

// Model is an immutable loaded bundle. Weights are read-only after load, so
// a single Model may serve any number of concurrent States.
type Model interface {
	// ID reports the identifier the model was resolved under.
	ID() string
	Spec() Spec
	// NewState opens a fresh mutable inference state (position counter and
	// attention cache) against the shared weights.
	NewState() (State, error)
	Close() error
}

// State is the mutable half of a request: one position counter and one
// attention cache. A State belongs to exactly one request and is never
// shared. Callers must Prefill before the first Decode; implementations
// reject out-of-order use rather than guessing.
type State interface {
	// Prefill embeds the prompt ids, runs the prefill component over them,
	// and returns the hidden state at the last prompt position.
	Prefill(ids []int) (Hidden, error)
	// Decode embeds one token at the current position, advances the cache,
	// and returns the hidden state at that position.
	Decode(id int) (Hidden, error)
	// Project runs the vocabulary projection on h and returns the logits
	// shards in declared order.
	Project(h Hidden) ([]Shard, error)
	Close() error
}

// Bundle is the on-disk material a factory attaches to: the bundle
// directory, the geometry parsed from its config, and the component files
// by name.
type Bundle struct {
	Dir        string
	ModelID    string
	ModelType  string
	Spec       Spec
	Components map[string]string
}
