package embedding

import (
	"hash/fnv"
	"strings"
)

// Special token ids of XLM-RoBERTa vocabularies such as bge-m3's.
const (
	bosTokenID = 0
	padTokenID = 1
	eosTokenID = 2
	vocabSize  = 250002
)

// Tokenizer produces model inputs for text. Sequences are not padded: they carry
// exactly the tokens of the text, including special tokens, cut at maxTokens.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64)
	Close() error
}

// clip cuts ids to maxTokens (when positive) and builds the matching attention mask.
// An empty sequence becomes a single masked padding token so tensor shapes stay valid.
func clip(ids []int64, maxTokens int) (inputIDs, attentionMask []int64) {
	if maxTokens > 0 && len(ids) > maxTokens {
		ids = ids[:maxTokens]
	}
	if len(ids) == 0 {
		return []int64{padTokenID}, []int64{0}
	}
	mask := make([]int64, len(ids))
	for i := range mask {
		mask[i] = 1
	}
	return ids, mask
}

// SimpleTokenizer is a whitespace tokenizer with hash-based token ids, for tests that
// need a Tokenizer without a vocabulary file.
type SimpleTokenizer struct{}

// Tokenize hashes each word into the vocabulary range and frames the words with
// <s> and </s>.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask []int64) {
	words := SplitWords(text)
	ids := make([]int64, 0, len(words)+2)
	ids = append(ids, bosTokenID)
	for _, word := range words {
		ids = append(ids, int64(HashString(word)%(vocabSize-3))+3)
	}
	ids = append(ids, eosTokenID)
	return clip(ids, maxTokens)
}

// Close is a no-op.
func (t *SimpleTokenizer) Close() error { return nil }

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	return words
}

// HashString returns a deterministic non-negative hash.
func HashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() & 0x7fffffff)
}
