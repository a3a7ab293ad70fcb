//go:build !tokenizers || !cgo
// +build !tokenizers !cgo

package embedding

import "errors"

var errNoTokenizers = errors.New("tokenizer.json support requires CGO and libtokenizers; build with -tags tokenizers")

// HFTokenizer stub type when built without the tokenizers tag (see hftokenizer.go).
type HFTokenizer struct{}

// LoadHFTokenizer returns an error when built without the tokenizers tag.
func LoadHFTokenizer(string) (*HFTokenizer, error) {
	return nil, errNoTokenizers
}

// Tokenize returns an empty sequence.
func (t *HFTokenizer) Tokenize(string, int) (inputIDs, attentionMask []int64) {
	return clip(nil, 0)
}

// Close is a no-op.
func (t *HFTokenizer) Close() error { return nil }
