// Package search answers semantic queries against an opened index. A query is
// validated, embedded on the shared embedding worker, scanned against the vector
// store under a bounded pool, and joined with document metadata.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hyperjump/localsearch/internal/config"
	"github.com/hyperjump/localsearch/internal/embedding"
	"github.com/hyperjump/localsearch/internal/index"
	"github.com/hyperjump/localsearch/internal/models"
	"github.com/hyperjump/localsearch/internal/storage"
	"github.com/hyperjump/localsearch/internal/vector"
	"github.com/hyperjump/localsearch/pkg/utils"
)

// Limits applied to every search request.
const (
	MinQueryChars = 2
	MaxTopK       = 50
)

// Service is safe for concurrent use. The index can be swapped with Reload while
// requests are in flight.
type Service struct {
	embedder  embedding.Embedder
	cfg       config.SearchConfig
	embedCfg  config.EmbeddingConfig
	openOpts  index.OpenOptions
	version   string
	scanSlots *semaphore.Weighted
	logger    *zap.Logger

	// mu is held shared for scan and join, exclusively only to swap idx.
	mu  sync.RWMutex
	idx *index.Index
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithVersion sets the version reported by Health.
func WithVersion(v string) Option {
	return func(s *Service) { s.version = v }
}

// New returns a service over idx. The service owns idx from now on; the embedder
// stays owned by the caller.
func New(embedder embedding.Embedder, idx *index.Index, cfg *config.Config, opts ...Option) *Service {
	workers := cfg.Search.ScanWorkers
	if workers < 1 {
		workers = 1
	}
	s := &Service{
		embedder:  embedder,
		cfg:       cfg.Search,
		embedCfg:  cfg.Embedding,
		openOpts:  index.OpenOptions{Dims: cfg.Embedding.Dimensions, MaxOpenConns: cfg.Index.MaxOpenConns},
		version:   "dev",
		scanSlots: semaphore.NewWeighted(int64(workers)),
		idx:       idx,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = utils.OrNop(s.logger)
	return s
}

// Search runs one query: Validate, Embed, Scan, MetadataJoin, Respond.
func (s *Service) Search(ctx context.Context, req models.SearchRequest) (*models.SearchResponse, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if utils.RuneLen(query) < MinQueryChars {
		return nil, badRequest("query must be at least %d chars", MinQueryChars)
	}
	topK := utils.ClampInt(req.TopK, 1, MaxTopK)

	qv, err := s.embedder.Embed(ctx, query, s.embedCfg.QueryMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	utils.NormalizeL2(qv)

	// Once embedded, the query runs to completion even if the caller has gone away;
	// the response is then simply dropped.
	hits, err := s.scanAndJoin(context.WithoutCancel(ctx), qv, topK, req.IncludeSnippet)
	if err != nil {
		return nil, err
	}

	return &models.SearchResponse{
		Query:  query,
		TopK:   topK,
		TookMs: time.Since(start).Milliseconds(),
		Hits:   hits,
	}, nil
}

func (s *Service) scanAndJoin(ctx context.Context, qv []float32, topK int, snippet bool) ([]models.SearchHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored, err := s.scan(ctx, qv, topK)
	if err != nil {
		return nil, err
	}

	var meta storage.Reader = s.idx.Meta
	hits := make([]models.SearchHit, 0, len(scored))
	for i, h := range scored {
		doc, err := meta.GetByRow(ctx, h.Row)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: row %d has no document", ErrIntegrity, h.Row)
		}
		if err != nil {
			return nil, err
		}
		hit := models.SearchHit{
			Rank:  i + 1,
			DocID: doc.DocID,
			Score: h.Score,
			Manga: models.MangaMeta{ID: doc.MangaID, Title: doc.Title, Source: models.SourceLocal},
		}
		if snippet {
			hit.Chunk = &models.Chunk{ID: 0, Text: utils.FirstRunes(doc.Text, s.cfg.SnippetChars)}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// scan runs the top-k search in one of the bounded scan slots. Callers hold mu.
func (s *Service) scan(ctx context.Context, qv []float32, topK int) ([]vector.Hit, error) {
	if err := s.scanSlots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.scanSlots.Release(1)
	hits, err := s.idx.Vectors.SearchTopK(qv, topK)
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return hits, nil
}

// Embed returns the embedding of text, L2-normalized unless normalize is false.
func (s *Service) Embed(ctx context.Context, text string, normalize bool) (*models.EmbedResponse, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, badRequest("text is required")
	}
	vec, err := s.embedder.Embed(ctx, text, s.embedCfg.QueryMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("embed text: %w", err)
	}
	if normalize {
		utils.NormalizeL2(vec)
	}
	return &models.EmbedResponse{
		Dims:       s.embedCfg.Dimensions,
		Normalized: normalize,
		Embedding:  vec,
	}, nil
}

// Health reports the model and the size of the served index.
func (s *Service) Health() models.HealthResponse {
	return models.HealthResponse{
		OK:      true,
		Version: s.version,
		Model:   models.ModelInfo{ID: s.embedCfg.ModelID, Dims: s.embedCfg.Dimensions},
		Index:   models.IndexStatus{Type: vector.IndexType, Docs: s.Docs()},
	}
}

// Docs returns the number of documents in the served index.
func (s *Service) Docs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Docs()
}

// Dir returns the directory of the served index.
func (s *Service) Dir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idx.Dir
}

// Reload opens the index in dir (the current directory when empty) and swaps it in.
// The previous index is closed after the last request using it has finished. On
// error the current index keeps serving.
func (s *Service) Reload(ctx context.Context, dir string) error {
	if dir == "" {
		dir = s.Dir()
	}
	next, err := index.Open(ctx, dir, s.openOpts)
	if err != nil {
		return fmt.Errorf("reload %s: %w", dir, err)
	}

	s.mu.Lock()
	prev := s.idx
	s.idx = next
	s.mu.Unlock()

	s.logger.Info("index reloaded",
		zap.String("dir", dir),
		zap.Int("docs", next.Docs()),
		zap.Int("previous_docs", prev.Docs()),
	)
	if err := prev.Close(); err != nil {
		s.logger.Warn("close previous index", zap.Error(err))
	}
	return nil
}

// Close releases the served index.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.Close()
}
