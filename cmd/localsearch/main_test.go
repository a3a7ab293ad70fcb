package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/localsearch/internal/cli"
	"github.com/hyperjump/localsearch/internal/config"
	"github.com/hyperjump/localsearch/internal/embedding"
	"github.com/hyperjump/localsearch/internal/index"
	"github.com/hyperjump/localsearch/internal/indexer"
	"github.com/hyperjump/localsearch/internal/models"
	"github.com/hyperjump/localsearch/internal/search"
	"github.com/hyperjump/localsearch/internal/server"
)

const testDims = 64

const testCorpus = `{"docId":"a","mangaId":1,"title":"T1","text":"hello world"}
{"docId":"b","mangaId":2,"title":"T2","text":"goodbye"}
`

func mockFactory() embedding.Factory {
	return func() (embedding.Embedder, error) { return embedding.NewMockEmbedder(testDims), nil }
}

// testSetup builds a two-document index with the mock embedder and returns a config pointing at it.
func testSetup(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Embedding.Dimensions = testDims
	cfg.Embedding.ModelID = "mock-model"
	cfg.Index.Dir = filepath.Join(t.TempDir(), "index")

	input := filepath.Join(t.TempDir(), "corpus.jsonl")
	if err := os.WriteFile(input, []byte(testCorpus), 0o644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	err := buildIndex(context.Background(), cfg, embedding.NewMockEmbedder(testDims), zap.NewNop(),
		indexer.BuildOptions{Input: input}, &out)
	if err != nil {
		t.Fatalf("buildIndex: %v", err)
	}
	if !strings.Contains(out.String(), "Indexed 2 documents (64 dims)") {
		t.Errorf("build output = %q", out.String())
	}
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	configPath := writeConfig(t, `
debug: true
server:
  host: "localhost"
  port: 8080
`)
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(filepath.Dir(configPath)); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolvedCanon, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	configPath := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
index:
  dir: "./idx"
`)
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if want := filepath.Join(filepath.Dir(configPath), "idx"); cfg.Index.Dir != want {
		t.Errorf("index dir = %s, want %s", cfg.Index.Dir, want)
	}
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestConfigFlags_dataDirAndDebug(t *testing.T) {
	configPath := writeConfig(t, "debug: false\n")
	dataDir := t.TempDir()

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cf := addConfigFlags(fs)
	if err := fs.Parse([]string{"-config", configPath, "-data-dir", dataDir, "-debug"}); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := cf.load()
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("-debug should enable debug")
	}
	if cfg.Index.Dir != filepath.Join(dataDir, "index") {
		t.Errorf("index dir = %s", cfg.Index.Dir)
	}
	if cfg.Embedding.ModelPath != filepath.Join(dataDir, "model", "bge-m3.onnx") {
		t.Errorf("model path = %s", cfg.Embedding.ModelPath)
	}
	if cfg.Embedding.TokenizerPath != filepath.Join(dataDir, "model", "tokenizer.json") {
		t.Errorf("tokenizer path = %s", cfg.Embedding.TokenizerPath)
	}
}

func TestSearchDirect(t *testing.T) {
	cfg := testSetup(t)
	resp, err := searchDirect(context.Background(), cfg, mockFactory(), models.SearchRequest{Query: "hello world", TopK: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Hits) != 1 || resp.Hits[0].DocID != "a" {
		t.Fatalf("hits = %+v", resp.Hits)
	}
	if resp.Hits[0].Score < 0.999 {
		t.Errorf("self-retrieval score = %f", resp.Hits[0].Score)
	}
}

func TestSearchDirect_missingIndex(t *testing.T) {
	cfg := config.Default()
	cfg.Embedding.Dimensions = testDims
	cfg.Index.Dir = filepath.Join(t.TempDir(), "missing")
	_, err := searchDirect(context.Background(), cfg, mockFactory(), models.SearchRequest{Query: "hello"})
	if err == nil || !strings.Contains(err.Error(), "build-index") {
		t.Fatalf("err = %v", err)
	}
}

func TestEmbedDirect(t *testing.T) {
	cfg := testSetup(t)
	resp, err := embedDirect(context.Background(), cfg, mockFactory(), "hello", true)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Dims != testDims || len(resp.Embedding) != testDims || !resp.Normalized {
		t.Fatalf("resp = %+v", resp)
	}
	var sum float64
	for _, v := range resp.Embedding {
		sum += float64(v) * float64(v)
	}
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("norm² = %f, want 1", sum)
	}
}

func TestLocalStatus(t *testing.T) {
	cfg := testSetup(t)
	st, err := localStatus(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if st.Source != "local" || st.IndexDir != cfg.Index.Dir {
		t.Errorf("status = %+v", st)
	}
	if st.Health.Index.Docs != 2 || st.Health.Model.Dims != testDims || st.Health.Model.ID != "mock-model" {
		t.Errorf("health = %+v", st.Health)
	}
	if st.Manifest == nil || st.Manifest.Docs != 2 {
		t.Errorf("manifest = %+v", st.Manifest)
	}
	if st.Disk == nil || st.Disk.VectorBytes != 2*testDims*4 || st.Disk.MetadataBytes == 0 {
		t.Errorf("disk = %+v", st.Disk)
	}
}

func TestRunSearch_viaServer(t *testing.T) {
	cfg := testSetup(t)
	idx, err := index.Open(context.Background(), cfg.Index.Dir, index.OpenOptions{Dims: testDims, MaxOpenConns: 2})
	if err != nil {
		t.Fatal(err)
	}
	svc := search.New(embedding.NewMockEmbedder(testDims), idx, cfg)
	defer svc.Close()
	ts := httptest.NewServer(server.NewServer(svc, cfg, nil).Handler())
	defer ts.Close()

	configPath := writeConfig(t, "debug: false\n")
	var out bytes.Buffer
	err = runSearch(context.Background(), []string{"goodbye", "-server", ts.URL, "-output", "json", "-config", configPath}, &out)
	if err != nil {
		t.Fatal(err)
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out.String())
	}
	if resp.Query != "goodbye" || len(resp.Hits) != 2 || resp.Hits[0].DocID != "b" {
		t.Errorf("resp = %+v", resp)
	}

	out.Reset()
	err = runSearch(context.Background(), []string{"x", "-server", ts.URL, "-config", configPath}, &out)
	var apiErr *cli.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 400 {
		t.Fatalf("short query err = %v, want 400 APIError", err)
	}

	out.Reset()
	if err := runStatus(context.Background(), []string{"-server", ts.URL}, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "Documents:  2") {
		t.Errorf("status output:\n%s", out.String())
	}

	out.Reset()
	if err := runEmbed(context.Background(), []string{"-server", ts.URL, "-output", "json", "hello"}, &out); err != nil {
		t.Fatal(err)
	}
	var emb models.EmbedResponse
	if err := json.Unmarshal(out.Bytes(), &emb); err != nil {
		t.Fatal(err)
	}
	if emb.Dims != testDims || !emb.Normalized {
		t.Errorf("embed = %+v", emb)
	}
}

func TestRunSearch_requiresQuery(t *testing.T) {
	var out bytes.Buffer
	err := runSearch(context.Background(), []string{"-top-k", "3"}, &out)
	if !errors.Is(err, errUsage) {
		t.Fatalf("err = %v, want errUsage", err)
	}
	if !strings.Contains(out.String(), "Usage: localsearch search") {
		t.Errorf("usage not printed: %q", out.String())
	}
}

func TestRunBuildIndex_requiresInput(t *testing.T) {
	var out bytes.Buffer
	if err := runBuildIndex(context.Background(), nil, &out); !errors.Is(err, errUsage) {
		t.Fatalf("err = %v, want errUsage", err)
	}
}

func TestPrintUsage(t *testing.T) {
	var out bytes.Buffer
	printUsage(&out)
	for _, cmd := range []string{"serve", "build-index", "search", "embed", "status", "version", "help"} {
		if !strings.Contains(out.String(), "localsearch "+cmd) {
			t.Errorf("usage missing %q", cmd)
		}
	}
}
