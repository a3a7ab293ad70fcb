package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync/atomic"
)

// MockEmbedder is a deterministic bag-of-words embedder for tests. Each word adds a
// pseudo-random ±1 vector seeded by its hash, so equal texts map to equal vectors,
// texts sharing words are close, and distinct words are nearly orthogonal. Vectors are
// not unit length: a single word has norm sqrt(dimensions).
type MockEmbedder struct {
	dimensions int
	calls      atomic.Int64

	// PanicOn makes Embed panic when the input text equals it.
	PanicOn string
	// FailOn makes Embed return an error when the input text equals it.
	FailOn string
}

// NewMockEmbedder returns a mock embedder producing vectors of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 1024
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns the deterministic vector for text. maxTokens limits how many words count.
func (e *MockEmbedder) Embed(_ context.Context, text string, maxTokens int) ([]float32, error) {
	e.calls.Add(1)
	if e.PanicOn != "" && text == e.PanicOn {
		panic("mock embedder: poisoned input")
	}
	if e.FailOn != "" && text == e.FailOn {
		return nil, fmt.Errorf("mock embedder: refused %q", text)
	}
	vec := make([]float32, e.dimensions)
	words := SplitWords(text)
	if maxTokens > 0 && len(words) > maxTokens {
		words = words[:maxTokens]
	}
	for _, w := range words {
		state := wordSeed(w)
		for i := range vec {
			state += 0x9e3779b97f4a7c15
			if mix64(state)>>63 == 0 {
				vec[i]++
			} else {
				vec[i]--
			}
		}
	}
	return vec, nil
}

func wordSeed(w string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(w))
	return h.Sum64()
}

// mix64 is the splitmix64 finalizer.
func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Calls returns how many times Embed has run.
func (e *MockEmbedder) Calls() int64 {
	return e.calls.Load()
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockEmbedder) Close() error {
	return nil
}
