package e2e

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/localsearch/internal/cli"
	"github.com/hyperjump/localsearch/internal/config"
	"github.com/hyperjump/localsearch/internal/embedding"
	"github.com/hyperjump/localsearch/internal/index"
	"github.com/hyperjump/localsearch/internal/indexer"
	"github.com/hyperjump/localsearch/internal/models"
	"github.com/hyperjump/localsearch/internal/search"
	"github.com/hyperjump/localsearch/internal/server"
	"github.com/hyperjump/localsearch/internal/watcher"
)

const e2eDimensions = 1024

type stack struct {
	cfg    *config.Config
	worker *embedding.Worker
	svc    *search.Service
	client *cli.Client
}

// startStack builds corpus into a fresh index and serves it over HTTP, with every
// embedding going through one worker as in production.
func startStack(t *testing.T, corpus *Corpus) *stack {
	t.Helper()
	cfg := config.Default()
	cfg.Embedding.Dimensions = e2eDimensions
	cfg.Embedding.ModelID = "mock"
	cfg.Index.Dir = filepath.Join(t.TempDir(), "index")

	worker, err := embedding.NewWorker(func() (embedding.Embedder, error) {
		return embedding.NewMockEmbedder(e2eDimensions), nil
	}, embedding.WithCache(cfg.Embedding.CacheSize))
	require.NoError(t, err)
	t.Cleanup(func() { _ = worker.Close() })

	build(t, cfg, worker, corpus)

	idx, err := index.Open(context.Background(), cfg.Index.Dir, index.OpenOptions{Dims: e2eDimensions, MaxOpenConns: 4})
	require.NoError(t, err)
	svc := search.New(worker, idx, cfg, search.WithVersion("e2e"))
	t.Cleanup(func() { _ = svc.Close() })

	ts := httptest.NewServer(server.NewServer(svc, cfg, nil).Handler())
	t.Cleanup(ts.Close)
	return &stack{cfg: cfg, worker: worker, svc: svc, client: cli.NewClient(ts.URL)}
}

func build(t *testing.T, cfg *config.Config, emb embedding.Embedder, corpus *Corpus) {
	t.Helper()
	input := filepath.Join(t.TempDir(), "corpus.jsonl")
	require.NoError(t, corpus.WriteJSONL(input))
	res, err := indexer.NewBuilder(emb).Build(context.Background(), indexer.BuildOptions{
		Input:        input,
		OutDir:       cfg.Index.Dir,
		DocMaxTokens: cfg.Embedding.DocMaxTokens,
		ModelID:      cfg.Embedding.ModelID,
	})
	require.NoError(t, err)
	require.Equal(t, corpus.TotalDocs, res.Docs)
}

func checkCase(t *testing.T, c *cli.Client, corpus *Corpus, tc QueryTestCase) {
	t.Helper()
	resp, err := c.Search(context.Background(), models.SearchRequest{Query: tc.Query, TopK: tc.TopK, IncludeSnippet: true})
	require.NoError(t, err)
	require.Len(t, resp.Hits, tc.TopK, "query %q", tc.Query)

	if tc.Exact {
		assert.Equal(t, tc.ExpectedDocIDs[0], resp.Hits[0].DocID,
			"%s: query %q got %s", tc.Description, tc.Query, describeHits(resp.Hits))
	} else {
		for _, h := range resp.Hits {
			assert.True(t, contains(tc.ExpectedDocIDs, h.DocID),
				"%s: query %q got %s", tc.Description, tc.Query, describeHits(resp.Hits))
		}
	}
	for i, h := range resp.Hits {
		assert.Equal(t, i+1, h.Rank)
		if i > 0 {
			assert.GreaterOrEqual(t, resp.Hits[i-1].Score, h.Score)
		}
		doc := corpus.DocByID(h.DocID)
		require.NotNil(t, doc, "unknown doc %s", h.DocID)
		assert.Equal(t, doc.MangaID, h.Manga.ID)
		assert.Equal(t, doc.Title, h.Manga.Title)
		assert.Equal(t, models.SourceLocal, h.Manga.Source)
		require.NotNil(t, h.Chunk)
		assert.Equal(t, doc.Text, h.Chunk.Text)
	}
}

func TestE2E_SearchReturnsCorrectResults(t *testing.T) {
	corpus := BuildCorpus(100)
	require.Equal(t, 100, corpus.TotalDocs)
	require.NotZero(t, corpus.TotalQueries)
	s := startStack(t, corpus)

	h, err := s.client.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, corpus.TotalDocs, h.Index.Docs)
	assert.Equal(t, e2eDimensions, h.Model.Dims)

	for _, tc := range corpus.TestCases {
		tc := tc
		t.Run(tc.Description, func(t *testing.T) {
			checkCase(t, s.client, corpus, tc)
		})
	}
}

func TestE2E_ConcurrentClients(t *testing.T) {
	corpus := BuildCorpus(100)
	s := startStack(t, corpus)

	var g errgroup.Group
	for worker := 0; worker < 8; worker++ {
		worker := worker
		g.Go(func() error {
			for i := 0; i < len(corpus.TestCases); i++ {
				tc := corpus.TestCases[(i+worker)%len(corpus.TestCases)]
				resp, err := s.client.Search(context.Background(), models.SearchRequest{Query: tc.Query, TopK: tc.TopK})
				if err != nil {
					return err
				}
				if resp.Query != tc.Query {
					t.Errorf("response for %q carries query %q", tc.Query, resp.Query)
				}
				if tc.Exact && resp.Hits[0].DocID != tc.ExpectedDocIDs[0] {
					t.Errorf("query %q got %s", tc.Query, describeHits(resp.Hits))
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestE2E_RebuildIsPickedUpByWatcher(t *testing.T) {
	small := BuildCorpus(40)
	s := startStack(t, small)

	var reloads atomic.Int32
	w := watcher.New(s.cfg.Index.Dir, func() {
		if err := s.svc.Reload(context.Background(), ""); err == nil {
			reloads.Add(1)
		}
	}, watcher.WithDebounce(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	// Searches keep succeeding while the index is rebuilt and swapped underneath them.
	stop := make(chan struct{})
	var g errgroup.Group
	g.Go(func() error {
		for {
			select {
			case <-stop:
				return nil
			default:
			}
			if _, err := s.client.Search(context.Background(), models.SearchRequest{Query: "Crimson Falcon", TopK: 3}); err != nil {
				return err
			}
		}
	})

	full := BuildCorpus(100)
	build(t, s.cfg, s.worker, full)

	require.Eventually(t, func() bool {
		h, err := s.client.Health(context.Background())
		return err == nil && h.Index.Docs == full.TotalDocs
	}, 5*time.Second, 50*time.Millisecond)
	close(stop)
	require.NoError(t, g.Wait())
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))

	last := full.TestCases[len(full.TestCases)-1]
	checkCase(t, s.client, full, last)
}
