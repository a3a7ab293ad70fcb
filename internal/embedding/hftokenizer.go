//go:build tokenizers && cgo
// +build tokenizers,cgo

package embedding

import (
	"fmt"

	"github.com/daulet/tokenizers"
)

// HFTokenizer encodes text with a Hugging Face tokenizer.json, the vocabulary the
// model was exported with. It needs libtokenizers at link time, so it is only built
// with the tokenizers tag.
type HFTokenizer struct {
	tk *tokenizers.Tokenizer
}

// LoadHFTokenizer reads a tokenizer.json file.
func LoadHFTokenizer(path string) (*HFTokenizer, error) {
	tk, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return &HFTokenizer{tk: tk}, nil
}

// Tokenize encodes text with the tokenizer's special tokens and cuts it at maxTokens.
func (t *HFTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64) {
	raw, _ := t.tk.Encode(text, true)
	ids := make([]int64, len(raw))
	for i, id := range raw {
		ids[i] = int64(id)
	}
	return clip(ids, maxTokens)
}

// Close frees the native tokenizer.
func (t *HFTokenizer) Close() error {
	return t.tk.Close()
}
