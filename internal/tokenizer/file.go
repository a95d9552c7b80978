package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	json "github.com/goccy/go-json"
)

// gpt2Pattern is the fallback pre-tokenizer split when the file declares
// none or declares one Go's RE2 engine cannot run.
const gpt2Pattern = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`

// tokenizerFile mirrors the parts of a Hugging Face tokenizer.json this
// loader consumes. The vocab map alone runs to six figures of entries for
// the Qwen family, which is why parsing goes through goccy.
type tokenizerFile struct {
	Model struct {
		Type         string         `json:"type"`
		Vocab        map[string]int `json:"vocab"`
		Merges       []any          `json:"merges"` // "a b" strings or ["a","b"] pairs
		IgnoreMerges bool           `json:"ignore_merges"`
		UnkToken     string         `json:"unk_token"`
	} `json:"model"`
	PreTokenizer preTokenizer `json:"pre_tokenizer"`
	AddedTokens  []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

type preTokenizer struct {
	Type    string `json:"type"`
	Pattern struct {
		Regex string `json:"Regex"`
	} `json:"pattern"`
	Pretokenizers []preTokenizer `json:"pretokenizers"`
}

type tokenizerConfigFile struct {
	EOSToken any `json:"eos_token"` // string or {content: string}
}

// LoadFile reads a tokenizer.json. A tokenizer_config.json sitting next to
// it contributes the EOS token when present.
func LoadFile(path string) (*BPE, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	var cfg []byte
	if raw, err := os.ReadFile(filepath.Join(filepath.Dir(path), "tokenizer_config.json")); err == nil {
		cfg = raw
	}
	return LoadBytes(data, cfg)
}

// LoadBytes parses tokenizer.json content, plus optional
// tokenizer_config.json content for the EOS token.
func LoadBytes(data, config []byte) (*BPE, error) {
	var tf tokenizerFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse tokenizer: %w", err)
	}
	if !strings.EqualFold(tf.Model.Type, "BPE") {
		return nil, fmt.Errorf("unsupported tokenizer model %q", tf.Model.Type)
	}
	if len(tf.Model.Vocab) == 0 {
		return nil, fmt.Errorf("tokenizer has an empty vocabulary")
	}

	maxID := -1
	for _, id := range tf.Model.Vocab {
		if id > maxID {
			maxID = id
		}
	}
	for _, at := range tf.AddedTokens {
		if at.ID > maxID {
			maxID = at.ID
		}
	}
	tokens := make([]string, maxID+1)
	for tok, id := range tf.Model.Vocab {
		tokens[id] = tok
	}

	var specials []special
	for _, at := range tf.AddedTokens {
		tokens[at.ID] = at.Content
		if at.Special {
			specials = append(specials, special{text: at.Content, id: at.ID})
		}
	}

	merges, err := parseMerges(tf.Model.Merges)
	if err != nil {
		return nil, err
	}

	pattern, err := compilePattern(tf.PreTokenizer)
	if err != nil {
		return nil, err
	}

	eosID := resolveEOS(config, tf, specials)
	unkID := -1
	if tf.Model.UnkToken != "" {
		if id, ok := tf.Model.Vocab[tf.Model.UnkToken]; ok {
			unkID = id
		}
	}

	return newBPE(tf.Model.Vocab, tokens, merges, pattern, specials, eosID, unkID, tf.Model.IgnoreMerges), nil
}

func parseMerges(raw []any) ([]mergePair, error) {
	merges := make([]mergePair, 0, len(raw))
	for i, entry := range raw {
		switch v := entry.(type) {
		case string:
			left, right, ok := strings.Cut(v, " ")
			if !ok {
				return nil, fmt.Errorf("merge %d: malformed entry %q", i, v)
			}
			merges = append(merges, mergePair{left, right})
		case []any:
			if len(v) != 2 {
				return nil, fmt.Errorf("merge %d: want a pair, got %d elements", i, len(v))
			}
			left, lok := v[0].(string)
			right, rok := v[1].(string)
			if !lok || !rok {
				return nil, fmt.Errorf("merge %d: non-string pair", i)
			}
			merges = append(merges, mergePair{left, right})
		default:
			return nil, fmt.Errorf("merge %d: unsupported entry type %T", i, entry)
		}
	}
	return merges, nil
}

// compilePattern finds the Split regex in the pre-tokenizer tree. Patterns
// using lookahead get the lookahead branch stripped first; if that is not
// enough for RE2, the GPT-2 default takes over.
func compilePattern(pre preTokenizer) (*regexp.Regexp, error) {
	pat := findSplitRegex(pre)
	if pat == "" {
		pat = gpt2Pattern
	}
	if strings.Contains(pat, "(?!") {
		pat = strings.Replace(pat, `\s+(?!\S)|`, "", 1)
	}
	if strings.Contains(pat, "(?!") || strings.Contains(pat, "(?=") {
		pat = gpt2Pattern
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		re, err = regexp.Compile(gpt2Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile pre-tokenizer pattern: %w", err)
		}
	}
	return re, nil
}

func findSplitRegex(pre preTokenizer) string {
	if pre.Type == "Split" && pre.Pattern.Regex != "" {
		return pre.Pattern.Regex
	}
	for _, sub := range pre.Pretokenizers {
		if pat := findSplitRegex(sub); pat != "" {
			return pat
		}
	}
	return ""
}

func resolveEOS(config []byte, tf tokenizerFile, specials []special) int {
	if len(config) > 0 {
		var tc tokenizerConfigFile
		if err := json.Unmarshal(config, &tc); err == nil {
			name := ""
			switch v := tc.EOSToken.(type) {
			case string:
				name = v
			case map[string]any:
				if content, ok := v["content"].(string); ok {
					name = content
				}
			}
			if name != "" {
				if id, ok := lookupToken(name, tf, specials); ok {
					return id
				}
			}
		}
	}
	if id, ok := lookupToken(EndOfText, tf, specials); ok {
		return id
	}
	return -1
}

func lookupToken(name string, tf tokenizerFile, specials []special) (int, bool) {
	for _, sp := range specials {
		if sp.text == name {
			return sp.id, true
		}
	}
	if id, ok := tf.Model.Vocab[name]; ok {
		return id, true
	}
	return 0, false
}
