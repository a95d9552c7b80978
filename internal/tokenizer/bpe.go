package tokenizer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// BPE is a byte-level BPE tokenizer. Bytes are first mapped to printable
// runes so every merge operates on valid strings, then merged greedily by
// rank. Encode results are cached per pre-token; the cache lock keeps one
// tokenizer usable from concurrent requests.
type BPE struct {
	vocab        map[string]int
	tokens       []string // id -> token text
	ranks        map[mergePair]int
	cacheMu      sync.RWMutex
	cache        map[string][]string
	pattern      *regexp.Regexp
	specials     []special // longest first
	eosID        int
	unkID        int
	ignoreMerges bool
	byteRune     [256]rune
	runeByte     map[rune]byte
	specialSet   map[int]bool
}

type mergePair struct {
	left  string
	right string
}

type special struct {
	text string
	id   int
}

// newBPE assembles a tokenizer from parsed vocabulary material. Loading
// from tokenizer.json lives in file.go.
func newBPE(vocab map[string]int, tokens []string, merges []mergePair, pattern *regexp.Regexp, specials []special, eosID, unkID int, ignoreMerges bool) *BPE {
	ranks := make(map[mergePair]int, len(merges))
	for i, m := range merges {
		if _, seen := ranks[m]; !seen {
			ranks[m] = i
		}
	}
	sort.SliceStable(specials, func(i, j int) bool {
		return len(specials[i].text) > len(specials[j].text)
	})
	specialSet := make(map[int]bool, len(specials))
	for _, sp := range specials {
		specialSet[sp.id] = true
	}
	toRune, fromRune := byteLevelTables()
	return &BPE{
		vocab:        vocab,
		tokens:       tokens,
		ranks:        ranks,
		cache:        make(map[string][]string),
		pattern:      pattern,
		specials:     specials,
		eosID:        eosID,
		unkID:        unkID,
		ignoreMerges: ignoreMerges,
		byteRune:     toRune,
		runeByte:     fromRune,
		specialSet:   specialSet,
	}
}

// EOSID returns the end-of-sequence id, or -1 when the file declared none.
func (t *BPE) EOSID() int { return t.eosID }

// TokenID looks up the id of an exact token string, specials included.
func (t *BPE) TokenID(content string) (int, bool) {
	if id, ok := t.vocab[content]; ok {
		return id, true
	}
	for _, sp := range t.specials {
		if sp.text == content {
			return sp.id, true
		}
	}
	return 0, false
}

// VocabSize returns the number of token ids, added tokens included.
func (t *BPE) VocabSize() int { return len(t.tokens) }

// Encode maps text to token ids. Special tokens embedded in the text are
// matched literally before byte-level BPE runs on the remainder.
func (t *BPE) Encode(text string) ([]int, error) {
	var ids []int
	for _, chunk := range t.splitSpecials(text) {
		if chunk.id >= 0 {
			ids = append(ids, chunk.id)
			continue
		}
		for _, piece := range t.pattern.FindAllString(chunk.text, -1) {
			for _, tok := range t.merge(t.toByteRunes(piece)) {
				id, ok := t.vocab[tok]
				if !ok {
					if t.unkID >= 0 {
						ids = append(ids, t.unkID)
						continue
					}
					return nil, fmt.Errorf("token %q not in vocabulary", tok)
				}
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}

// Decode maps ids back to text. Special tokens decode to their literal
// content so downstream extraction can cut on them.
func (t *BPE) Decode(ids []int) (string, error) {
	var b []byte
	for _, id := range ids {
		if id < 0 || id >= len(t.tokens) {
			return "", fmt.Errorf("token id %d out of range [0,%d)", id, len(t.tokens))
		}
		tok := t.tokens[id]
		if t.specialSet[id] {
			b = append(b, tok...)
			continue
		}
		for _, r := range tok {
			if by, ok := t.runeByte[r]; ok {
				b = append(b, by)
			} else {
				b = append(b, string(r)...)
			}
		}
	}
	return string(b), nil
}

// toByteRunes maps every byte of s to its printable stand-in rune.
func (t *BPE) toByteRunes(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 2)
	for _, by := range []byte(s) {
		b.WriteRune(t.byteRune[by])
	}
	return b.String()
}

// merge applies BPE merges to one pre-token, lowest rank first.
func (t *BPE) merge(piece string) []string {
	t.cacheMu.RLock()
	cached, ok := t.cache[piece]
	t.cacheMu.RUnlock()
	if ok {
		return cached
	}
	if t.ignoreMerges {
		if _, ok := t.vocab[piece]; ok {
			out := []string{piece}
			t.store(piece, out)
			return out
		}
	}

	word := make([]string, 0, len(piece))
	for _, r := range piece {
		word = append(word, string(r))
	}
	for len(word) > 1 {
		best := -1
		bestRank := int(^uint(0) >> 1)
		for i := 0; i < len(word)-1; i++ {
			if rank, ok := t.ranks[mergePair{word[i], word[i+1]}]; ok && rank < bestRank {
				bestRank = rank
				best = i
			}
		}
		if best < 0 {
			break
		}
		merged := word[best] + word[best+1]
		word = append(word[:best], append([]string{merged}, word[best+2:]...)...)
	}
	t.store(piece, word)
	return word
}

func (t *BPE) store(piece string, word []string) {
	t.cacheMu.Lock()
	t.cache[piece] = word
	t.cacheMu.Unlock()
}

type textChunk struct {
	text string
	id   int // special token id, -1 for plain text
}

func (t *BPE) splitSpecials(text string) []textChunk {
	if len(t.specials) == 0 {
		return []textChunk{{text: text, id: -1}}
	}
	var chunks []textChunk
	start := 0
	for i := 0; i < len(text); {
		matched := false
		for _, sp := range t.specials {
			if strings.HasPrefix(text[i:], sp.text) {
				if i > start {
					chunks = append(chunks, textChunk{text: text[start:i], id: -1})
				}
				chunks = append(chunks, textChunk{text: sp.text, id: sp.id})
				i += len(sp.text)
				start = i
				matched = true
				break
			}
		}
		if !matched {
			i++
		}
	}
	if start < len(text) {
		chunks = append(chunks, textChunk{text: text[start:], id: -1})
	}
	return chunks
}

// byteLevelTables builds the GPT-2 byte-to-rune mapping: printable bytes
// map to themselves, the rest to runes from 256 up, assigned in byte order.
func byteLevelTables() ([256]rune, map[rune]byte) {
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	var toRune [256]rune
	fromRune := make(map[rune]byte, 256)
	next := 0
	for b := 0; b < 256; b++ {
		r := rune(b)
		if !printable(b) {
			r = rune(256 + next)
			next++
		}
		toRune[b] = r
		fromRune[r] = byte(b)
	}
	return toRune, fromRune
}
