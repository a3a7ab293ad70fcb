// Package embedding turns text into dense vectors. Embedders are stateful and not
// safe for concurrent use; Worker serializes access to a single instance.
package embedding

import (
	"context"
	"errors"
)

// TokenizerFileName is the tokenizer file expected next to an ONNX model.
const TokenizerFileName = "tokenizer.json"

var (
	// ErrEmbedderPoisoned is returned to the request during which the embedder panicked.
	// The worker replaces the instance before serving the next request.
	ErrEmbedderPoisoned = errors.New("embedder panicked")
	// ErrWorkerClosed is returned once the worker has been shut down.
	ErrWorkerClosed = errors.New("embedding worker closed")
)

// Embedder produces a raw (unnormalized) dense vector for text, truncated to maxTokens.
type Embedder interface {
	Embed(ctx context.Context, text string, maxTokens int) ([]float32, error)
	Dimensions() int
	Close() error
}

// Factory creates a fresh Embedder. It is called once at start and again after a panic.
type Factory func() (Embedder, error)
