package backend

import (
	"strings"
	"testing"
)

func validSpec() Spec {
	return Spec{
		BatchSize:     1,
		ContextLength: 256,
		HiddenSize:    1024,
		VocabSize:     48,
		ShardWidths:   []int{16, 16, 16},
	}
}

func TestSpecValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Spec)
		wantErr string
	}{
		{"valid", func(s *Spec) {}, ""},
		{"zero batch", func(s *Spec) { s.BatchSize = 0 }, "batch size"},
		{"zero context", func(s *Spec) { s.ContextLength = 0 }, "context length"},
		{"negative hidden", func(s *Spec) { s.HiddenSize = -1 }, "hidden size"},
		{"zero vocab", func(s *Spec) { s.VocabSize = 0 }, "vocab size"},
		{"no shards", func(s *Spec) { s.ShardWidths = nil }, "no logits shards"},
		{"zero width shard", func(s *Spec) { s.ShardWidths = []int{16, 0, 32} }, "shard 1 width"},
		{"widths do not cover vocab", func(s *Spec) { s.ShardWidths = []int{16, 16} }, "sum to 32"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := validSpec()
			tc.mutate(&s)
			err := s.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestSpecParts(t *testing.T) {
	t.Parallel()
	if got := validSpec().Parts(); got != 3 {
		t.Fatalf("Parts() = %d, want 3", got)
	}
}

type nopModel struct{ id string }

func (m *nopModel) ID() string { return m.id }
func (m *nopModel) Spec() Spec { return validSpec() }

func (m *nopModel) NewState() (State, error) { return nil, nil }
func (m *nopModel) Close() error             { return nil }

func TestRegistryOpen(t *testing.T) {
	Register("Testfake", func(b Bundle) (Model, error) {
		return &nopModel{id: b.ModelID}, nil
	})

	m, err := Open(Bundle{ModelID: "owner/model", ModelType: "testfake"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.ID() != "owner/model" {
		t.Fatalf("ID() = %q, want owner/model", m.ID())
	}
}

func TestRegistryUnknownType(t *testing.T) {
	_, err := Open(Bundle{ModelType: "never-registered"})
	if err == nil {
		t.Fatal("expected error for unregistered model type")
	}
	if !strings.Contains(err.Error(), "never-registered") {
		t.Fatalf("error should name the type, got: %v", err)
	}
	if !strings.Contains(err.Error(), "available:") {
		t.Fatalf("error should list available types, got: %v", err)
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	if got := Normalize("  Qwen "); got != "qwen" {
		t.Fatalf("Normalize = %q, want qwen", got)
	}
}
