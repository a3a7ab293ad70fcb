// Package indexer builds an index directory from a corpus: every document is embedded,
// normalized and appended to the vector file, and its metadata is recorded under the
// same row. Each build writes a fresh version directory and publishes it in one rename.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/localsearch/internal/corpus"
	"github.com/hyperjump/localsearch/internal/embedding"
	"github.com/hyperjump/localsearch/internal/index"
	"github.com/hyperjump/localsearch/internal/storage"
	"github.com/hyperjump/localsearch/internal/vector"
	"github.com/hyperjump/localsearch/pkg/utils"
)

const (
	defaultDocMaxTokens  = 1024
	defaultProgressEvery = 1000
)

// ErrDimensions is returned when the embedder yields a vector of unexpected length.
var ErrDimensions = errors.New("embedding has wrong dimensionality")

// BuildOptions describes one build.
type BuildOptions struct {
	Input        string
	OutDir       string
	DocMaxTokens int
	ModelID      string
}

// BuildResult summarizes a published index.
type BuildResult struct {
	Docs   int
	Dims   int
	OutDir string
	Took   time.Duration
}

// Builder builds indexes with one embedder.
type Builder struct {
	embedder      embedding.Embedder
	progressEvery int
	logger        *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets a logger for progress output.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) { b.logger = l }
}

// WithProgressEvery logs progress every n documents.
func WithProgressEvery(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.progressEvery = n
		}
	}
}

// NewBuilder returns a builder that embeds documents with embedder.
func NewBuilder(embedder embedding.Embedder, opts ...BuilderOption) *Builder {
	b := &Builder{embedder: embedder, progressEvery: defaultProgressEvery}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = utils.OrNop(b.logger)
	return b
}

// Build reads opts.Input and publishes a new index at opts.OutDir. Any error aborts
// the build, removes the new version and leaves the previous index untouched.
func (b *Builder) Build(ctx context.Context, opts BuildOptions) (*BuildResult, error) {
	start := time.Now()
	if opts.Input == "" {
		return nil, errors.New("input corpus is required")
	}
	if opts.OutDir == "" {
		return nil, errors.New("output directory is required")
	}
	if opts.DocMaxTokens <= 0 {
		opts.DocMaxTokens = defaultDocMaxTokens
	}
	dims := b.embedder.Dimensions()
	if dims <= 0 {
		return nil, fmt.Errorf("embedder reports invalid dimensions %d", dims)
	}

	lock, err := index.Lock(opts.OutDir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	version, err := index.NewVersion(opts.OutDir)
	if err != nil {
		return nil, err
	}
	published := false
	defer func() {
		if !published {
			_ = version.Discard()
		}
	}()

	docs, err := b.write(ctx, version.Dir, dims, opts)
	if err != nil {
		return nil, err
	}

	// Re-open the new version so a broken build is never published.
	idx, err := index.Open(ctx, version.Dir, index.OpenOptions{Dims: dims, MaxOpenConns: 1})
	if err != nil {
		return nil, fmt.Errorf("verify built index: %w", err)
	}
	if err := idx.Close(); err != nil {
		return nil, fmt.Errorf("close built index: %w", err)
	}

	if err := index.Publish(version, opts.OutDir); err != nil {
		return nil, err
	}
	published = true
	if removed, err := index.Prune(opts.OutDir); err != nil {
		b.logger.Warn("prune old index versions", zap.Error(err))
	} else if len(removed) > 0 {
		b.logger.Debug("pruned old index versions", zap.Strings("dirs", removed))
	}

	res := &BuildResult{Docs: docs, Dims: dims, OutDir: opts.OutDir, Took: time.Since(start)}
	b.logger.Info("index built",
		zap.String("out", opts.OutDir),
		zap.Int("docs", res.Docs),
		zap.Int("dims", res.Dims),
		zap.Duration("took", res.Took),
	)
	return res, nil
}

// write fills dir with the vector file, metadata and manifest, returning the row count.
func (b *Builder) write(ctx context.Context, dir string, dims int, opts BuildOptions) (int, error) {
	layout := index.Layout{Dir: dir}

	src, err := corpus.Open(opts.Input)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	b.logger.Info("reading corpus", zap.String("input", opts.Input), zap.Stringer("format", src.Format()))

	vw, err := vector.NewWriter(layout.VectorPath(), dims)
	if err != nil {
		return 0, err
	}
	defer vw.Close()

	meta, err := storage.Create(layout.MetadataPath())
	if err != nil {
		return 0, err
	}
	defer meta.Close()

	batch, err := meta.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin metadata transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = batch.Rollback()
		}
	}()

	row := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		doc, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, err
		}

		vec, err := b.embedder.Embed(ctx, doc.Text, opts.DocMaxTokens)
		if err != nil {
			return 0, fmt.Errorf("embed doc %q (row %d): %w", doc.DocID, row, err)
		}
		if len(vec) != dims {
			return 0, fmt.Errorf("%w: doc %q got %d, expected %d", ErrDimensions, doc.DocID, len(vec), dims)
		}
		utils.NormalizeL2(vec)

		if err := vw.Append(vec); err != nil {
			return 0, err
		}
		if err := batch.Insert(ctx, row, doc); err != nil {
			return 0, fmt.Errorf("write metadata: %w", err)
		}
		row++
		if row%b.progressEvery == 0 {
			b.logger.Info("indexing progress", zap.Int("docs", row))
		}
	}

	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit metadata: %w", err)
	}
	committed = true
	if err := meta.Close(); err != nil {
		return 0, fmt.Errorf("close metadata: %w", err)
	}
	if err := vw.Close(); err != nil {
		return 0, err
	}

	err = index.WriteManifest(dir, index.Manifest{
		ModelID:      opts.ModelID,
		Dims:         dims,
		Docs:         row,
		DocMaxTokens: opts.DocMaxTokens,
	})
	if err != nil {
		return 0, err
	}
	return row, nil
}
