// Package tokenizer converts between text and the token ids the model
// components consume. The concrete implementation is byte-level BPE loaded
// from a Hugging Face tokenizer.json; everything downstream depends only
// on the small interface.
package tokenizer

// EndOfText is the sentinel the model family closes generations with. The
// extraction step also cuts on its literal text after decode.
const EndOfText = "<|endoftext|>"

// Tokenizer is the slice of tokenization the engine needs.
type Tokenizer interface {
	Encode(text string) ([]int, error)
	Decode(ids []int) (string, error)
	// EOSID returns the end-of-sequence token id, or -1 when unknown.
	EOSID() int
}

// StopIDs returns the token ids that terminate a generation: the EOS id
// plus the end-of-text sentinel when the vocabulary maps it to a different
// id.
func StopIDs(t Tokenizer) []int {
	var out []int
	if eos := t.EOSID(); eos >= 0 {
		out = append(out, eos)
	}
	if lk, ok := t.(interface{ TokenID(string) (int, bool) }); ok {
		if id, found := lk.TokenID(EndOfText); found && (len(out) == 0 || out[0] != id) {
			out = append(out, id)
		}
	}
	return out
}
