//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var ortInit struct {
	once sync.Once
	err  error
}

// initRuntime loads the onnxruntime shared library once per process.
func initRuntime(libraryPath string) error {
	ortInit.once.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if !ort.IsInitialized() {
			ortInit.err = ort.InitializeEnvironment()
		}
	})
	return ortInit.err
}

// ONNXConfig locates the model, its tokenizer and the runtime for NewONNXEmbedder.
type ONNXConfig struct {
	ModelPath string
	// TokenizerPath defaults to tokenizer.json next to the model.
	TokenizerPath    string
	LibraryPath      string
	Dimensions       int
	OutputName       string
	DefaultMaxTokens int
}

// ONNXEmbedder runs an XLM-RoBERTa encoder such as bge-m3 exported to ONNX and returns
// the first (<s>) row of last_hidden_state. Each call runs at the real token count of
// its text. Not safe for concurrent use.
type ONNXEmbedder struct {
	cfg       ONNXConfig
	tokenizer Tokenizer
	session   *ort.DynamicAdvancedSession
}

// NewONNXEmbedder loads the tokenizer, initializes the runtime and opens the model.
func NewONNXEmbedder(cfg ONNXConfig) (*ONNXEmbedder, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("invalid embedding dimensions %d", cfg.Dimensions)
	}
	if cfg.OutputName == "" {
		cfg.OutputName = "last_hidden_state"
	}
	if cfg.DefaultMaxTokens <= 0 {
		cfg.DefaultMaxTokens = 512
	}
	if cfg.TokenizerPath == "" {
		cfg.TokenizerPath = filepath.Join(filepath.Dir(cfg.ModelPath), TokenizerFileName)
	}
	tok, err := LoadHFTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}
	if err := initRuntime(cfg.LibraryPath); err != nil {
		_ = tok.Close()
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{cfg.OutputName},
		nil,
	)
	if err != nil {
		_ = tok.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return &ONNXEmbedder{cfg: cfg, tokenizer: tok, session: session}, nil
}

// Embed returns the raw first-token hidden state for text.
func (e *ONNXEmbedder) Embed(_ context.Context, text string, maxTokens int) ([]float32, error) {
	if maxTokens <= 0 {
		maxTokens = e.cfg.DefaultMaxTokens
	}
	inputIDs, attentionMask := e.tokenizer.Tokenize(text, maxTokens)
	seqLen := int64(len(inputIDs))
	shape := ort.NewShape(1, seqLen)

	idsT, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer maskT.Destroy()
	typesT, err := ort.NewTensor(shape, make([]int64, seqLen))
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer typesT.Destroy()
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, seqLen, int64(e.cfg.Dimensions)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer out.Destroy()

	err = e.session.Run(
		[]ort.ArbitraryTensor{idsT, maskT, typesT},
		[]ort.ArbitraryTensor{out},
	)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	embedding := make([]float32, e.cfg.Dimensions)
	copy(embedding, out.GetData()[:e.cfg.Dimensions])
	return embedding, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Close destroys the session and frees the tokenizer.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.tokenizer != nil {
		if terr := e.tokenizer.Close(); err == nil {
			err = terr
		}
		e.tokenizer = nil
	}
	return err
}
