package logits

import (
	"fmt"

	"github.com/samcharles93/typofix/internal/backend"
)

// ShapeError reports projection output that does not match the geometry
// the model declared at load time.
type ShapeError struct {
	WantParts int
	GotParts  int
	// Part identifies the offending shard when widths mismatch; it is -1
	// when the shard count itself is wrong.
	Part      int
	WantWidth int
	GotWidth  int
}

func (e *ShapeError) Error() string {
	if e.Part < 0 {
		return fmt.Sprintf("logits shape: got %d shards, want %d", e.GotParts, e.WantParts)
	}
	return fmt.Sprintf("logits shape: shard %d has width %d, want %d", e.Part, e.GotWidth, e.WantWidth)
}

// Assembler concatenates logits shards into one vocabulary-indexed row.
// It owns a single output buffer, reused across calls, so the returned
// slice is only valid until the next Assemble. One Assembler serves one
// session.
type Assembler struct {
	widths []int
	vocab  int
	row    []float32
}

// NewAssembler builds an assembler for the model geometry. The spec is
// assumed validated at session open.
func NewAssembler(spec backend.Spec) *Assembler {
	return &Assembler{
		widths: spec.ShardWidths,
		vocab:  spec.VocabSize,
		row:    make([]float32, spec.VocabSize),
	}
}

// Assemble checks every shard against the declared widths and concatenates
// them in declared order. Any mismatch returns a *ShapeError and no row.
func (a *Assembler) Assemble(shards []backend.Shard) ([]float32, error) {
	if len(shards) != len(a.widths) {
		return nil, &ShapeError{
			WantParts: len(a.widths),
			GotParts:  len(shards),
			Part:      -1,
		}
	}
	off := 0
	for i, shard := range shards {
		if len(shard) != a.widths[i] {
			return nil, &ShapeError{
				WantParts: len(a.widths),
				GotParts:  len(shards),
				Part:      i,
				WantWidth: a.widths[i],
				GotWidth:  len(shard),
			}
		}
		copy(a.row[off:], shard)
		off += len(shard)
	}
	return a.row[:a.vocab], nil
}
