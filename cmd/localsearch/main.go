// Package main is the localsearch CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/localsearch/internal/cli"
	"github.com/hyperjump/localsearch/internal/config"
	"github.com/hyperjump/localsearch/internal/embedding"
	"github.com/hyperjump/localsearch/internal/index"
	"github.com/hyperjump/localsearch/internal/indexer"
	"github.com/hyperjump/localsearch/internal/models"
	"github.com/hyperjump/localsearch/internal/search"
	"github.com/hyperjump/localsearch/internal/server"
	"github.com/hyperjump/localsearch/internal/vector"
	"github.com/hyperjump/localsearch/internal/watcher"
	"github.com/hyperjump/localsearch/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/localsearch/config.yaml"

// errUsage marks a command line mistake; the usage text has already been printed.
var errUsage = errors.New("invalid usage")

// loadConfig loads config from path. When path is the default, config.yaml in the
// current directory wins (for development), and a missing default file means built-in
// defaults. Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// configFlags are the flags shared by every command that reads the config.
type configFlags struct {
	path    *string
	dataDir *string
	debug   *bool
}

func addConfigFlags(fs *flag.FlagSet) *configFlags {
	return &configFlags{
		path:    fs.String("config", defaultConfigPath, "config file path"),
		dataDir: fs.String("data-dir", "", "data directory holding index/ and model/ (overrides config paths)"),
		debug:   fs.Bool("debug", false, "enable debug logging"),
	}
}

func (f *configFlags) load() (*config.Config, string, error) {
	cfg, resolved, err := loadConfig(*f.path)
	if err != nil {
		return nil, "", err
	}
	if *f.dataDir != "" {
		cfg.UseDataDir(*f.dataDir)
	}
	if *f.debug {
		cfg.Debug = true
	}
	return cfg, resolved, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	command, args := os.Args[1], os.Args[2:]
	var err error
	switch command {
	case "serve", "server":
		err = runServe(ctx, args)
	case "build-index":
		err = runBuildIndex(ctx, args, os.Stdout)
	case "search":
		err = runSearch(ctx, args, os.Stdout)
	case "embed":
		err = runEmbed(ctx, args, os.Stdout)
	case "status":
		err = runStatus(ctx, args, os.Stdout)
	case "version", "--version", "-v":
		fmt.Printf("localsearch version %s\n", version)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage(os.Stdout)
		os.Exit(1)
	}
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// onnxFactory creates ONNX embedders for the worker, once at start and again after a panic.
func onnxFactory(cfg *config.Config) embedding.Factory {
	return func() (embedding.Embedder, error) {
		e, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:        cfg.Embedding.ModelPath,
			TokenizerPath:    cfg.Embedding.TokenizerPath,
			LibraryPath:      cfg.Embedding.OrtLibraryPath,
			Dimensions:       cfg.Embedding.Dimensions,
			DefaultMaxTokens: cfg.Embedding.QueryMaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

func newWorker(cfg *config.Config, factory embedding.Factory, logger *zap.Logger, cache bool) (*embedding.Worker, error) {
	opts := []embedding.WorkerOption{
		embedding.WithQueueSize(cfg.Embedding.QueueSize),
		embedding.WithLogger(logger),
	}
	if cache {
		opts = append(opts, embedding.WithCache(cfg.Embedding.CacheSize))
	}
	w, err := embedding.NewWorker(factory, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding model %s: %w", cfg.Embedding.ModelPath, err)
	}
	return w, nil
}

func openService(ctx context.Context, cfg *config.Config, emb embedding.Embedder, logger *zap.Logger) (*search.Service, error) {
	idx, err := index.Open(ctx, cfg.Index.Dir, index.OpenOptions{
		Dims:         cfg.Embedding.Dimensions,
		MaxOpenConns: cfg.Index.MaxOpenConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open index (run build-index first?): %w", err)
	}
	return search.New(emb, idx, cfg, search.WithLogger(logger), search.WithVersion(version)), nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cf := addConfigFlags(fs)
	port := fs.Int("port", 0, "base port to listen on (tries higher ports when busy)")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := cf.load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if *port > 0 {
		span := cfg.Server.MaxPort - cfg.Server.Port
		cfg.Server.Port = *port
		cfg.Server.MaxPort = *port + max(span, 0)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("index_dir", cfg.Index.Dir),
		zap.String("model_path", cfg.Embedding.ModelPath),
		zap.String("tokenizer_path", cfg.Embedding.TokenizerPath),
		zap.Bool("debug", cfg.Debug),
	)

	worker, err := newWorker(cfg, onnxFactory(cfg), logger, true)
	if err != nil {
		return err
	}
	defer worker.Close()

	svc, err := openService(ctx, cfg, worker, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	reload := func() {
		if err := svc.Reload(ctx, ""); err != nil {
			logger.Warn("index reload failed", zap.Error(err))
		}
	}
	if cfg.Index.Watch {
		w := watcher.New(cfg.Index.Dir, reload, watcher.WithLogger(logger))
		if err := w.Start(ctx); err != nil {
			return fmt.Errorf("failed to start index watcher: %w", err)
		}
		defer w.Stop()
	}

	srv := server.NewServer(svc, cfg, logger)
	ln, err := srv.Listen()
	if err != nil {
		return err
	}
	logger.Info("serving",
		zap.String("url", "http://"+ln.Addr().String()),
		zap.Int("docs", svc.Docs()),
	)

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Serve(ln) })
	g.Go(func() error {
		for {
			select {
			case <-hup:
				logger.Info("SIGHUP received, reloading index")
				reload()
			case <-gctx.Done():
				logger.Info("Shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(),
					time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
				defer cancel()
				return srv.Stop(shutdownCtx)
			}
		}
	})
	return g.Wait()
}

func runBuildIndex(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("build-index", flag.ExitOnError)
	cf := addConfigFlags(fs)
	input := fs.String("input", "", "corpus file: JSONL records, plain text, .pdf, .xlsx or .docx")
	out := fs.String("out", "", "output index directory (default: index.dir from config)")
	docMaxTokens := fs.Int("doc-max-tokens", 0, "token budget per document (default: embedding.doc_max_tokens)")
	_ = fs.Parse(args)

	if *input == "" {
		fmt.Fprintln(stdout, "Usage: localsearch build-index -input <corpus> [-out dir] [-doc-max-tokens n]")
		return errUsage
	}
	cfg, _, err := cf.load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	worker, err := newWorker(cfg, onnxFactory(cfg), logger, false)
	if err != nil {
		return err
	}
	defer worker.Close()

	return buildIndex(ctx, cfg, worker, logger, indexer.BuildOptions{
		Input:        *input,
		OutDir:       *out,
		DocMaxTokens: *docMaxTokens,
	}, stdout)
}

// buildIndex fills defaults for opts from cfg and runs one build with emb.
func buildIndex(ctx context.Context, cfg *config.Config, emb embedding.Embedder, logger *zap.Logger, opts indexer.BuildOptions, stdout io.Writer) error {
	if opts.OutDir == "" {
		opts.OutDir = cfg.Index.Dir
	}
	if opts.DocMaxTokens <= 0 {
		opts.DocMaxTokens = cfg.Embedding.DocMaxTokens
	}
	if opts.ModelID == "" {
		opts.ModelID = cfg.Embedding.ModelID
	}
	b := indexer.NewBuilder(emb,
		indexer.WithLogger(logger),
		indexer.WithProgressEvery(cfg.Build.ProgressEvery),
	)
	res, err := b.Build(ctx, opts)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Indexed %d documents (%d dims) into %s in %s\n",
		res.Docs, res.Dims, res.OutDir, res.Took.Round(time.Millisecond))
	return nil
}

func runSearch(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	cf := addConfigFlags(fs)
	serverURL := fs.String("server", "", "server URL, e.g. http://127.0.0.1:17777 (empty: open the index directly)")
	topK := fs.Int("top-k", 0, "number of results (default: search.default_top_k)")
	snippet := fs.Bool("snippet", false, "include a text snippet per hit")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(cli.ReorderArgs(args))

	query := cli.JoinArgs(fs.Args())
	if query == "" {
		fmt.Fprintln(stdout, "Usage: localsearch search [-server URL] [-top-k n] [-snippet] [-output text|json] <query>")
		return errUsage
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		return err
	}
	cfg, _, err := cf.load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	req := models.SearchRequest{Query: query, TopK: *topK, IncludeSnippet: *snippet}
	if req.TopK <= 0 {
		req.TopK = cfg.Search.DefaultTopK
	}

	var resp *models.SearchResponse
	if *serverURL != "" {
		resp, err = cli.NewClient(*serverURL).Search(ctx, req)
	} else {
		resp, err = searchDirect(ctx, cfg, onnxFactory(cfg), req)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	return cli.WriteSearchResults(stdout, resp, format)
}

func searchDirect(ctx context.Context, cfg *config.Config, factory embedding.Factory, req models.SearchRequest) (*models.SearchResponse, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	worker, err := newWorker(cfg, factory, logger, false)
	if err != nil {
		return nil, err
	}
	defer worker.Close()
	svc, err := openService(ctx, cfg, worker, logger)
	if err != nil {
		return nil, err
	}
	defer svc.Close()
	return svc.Search(ctx, req)
}

func runEmbed(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	cf := addConfigFlags(fs)
	serverURL := fs.String("server", "", "server URL (empty: load the model directly)")
	raw := fs.Bool("raw", false, "return the embedding without L2 normalization")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(cli.ReorderArgs(args))

	text := cli.JoinArgs(fs.Args())
	if text == "" {
		fmt.Fprintln(stdout, "Usage: localsearch embed [-server URL] [-raw] [-output text|json] <text>")
		return errUsage
	}
	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		return err
	}

	var resp *models.EmbedResponse
	if *serverURL != "" {
		resp, err = cli.NewClient(*serverURL).Embed(ctx, models.EmbedRequest{Text: text, Normalize: !*raw})
	} else {
		var cfg *config.Config
		cfg, _, err = cf.load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		resp, err = embedDirect(ctx, cfg, onnxFactory(cfg), text, !*raw)
	}
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	return cli.WriteEmbedding(stdout, resp, format)
}

// embedDirect embeds without an index, so it skips the search service.
func embedDirect(ctx context.Context, cfg *config.Config, factory embedding.Factory, text string, normalize bool) (*models.EmbedResponse, error) {
	emb, err := factory()
	if err != nil {
		return nil, err
	}
	defer emb.Close()
	vec, err := emb.Embed(ctx, text, cfg.Embedding.QueryMaxTokens)
	if err != nil {
		return nil, err
	}
	if normalize {
		utils.NormalizeL2(vec)
	}
	return &models.EmbedResponse{Dims: len(vec), Normalized: normalize, Embedding: vec}, nil
}

func runStatus(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	cf := addConfigFlags(fs)
	serverURL := fs.String("server", "", "server URL (empty: inspect the index directory directly)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseOutputFormat(*output)
	if err != nil {
		return err
	}
	var st *cli.Status
	if *serverURL != "" {
		h, herr := cli.NewClient(*serverURL).Health(ctx)
		if herr != nil {
			return fmt.Errorf("status failed: %w", herr)
		}
		st = &cli.Status{Source: *serverURL, Health: *h}
	} else {
		cfg, _, lerr := cf.load()
		if lerr != nil {
			return fmt.Errorf("failed to load config: %w", lerr)
		}
		st, err = localStatus(ctx, cfg)
		if err != nil {
			return fmt.Errorf("status failed: %w", err)
		}
	}
	return cli.WriteStatus(stdout, st, format)
}

// localStatus opens the configured index read-only. The manifest, when present,
// decides the dimension so status works whatever model built the index.
func localStatus(ctx context.Context, cfg *config.Config) (*cli.Status, error) {
	dir := cfg.Index.Dir
	m, err := index.ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	dims, modelID := cfg.Embedding.Dimensions, cfg.Embedding.ModelID
	if m != nil {
		dims = m.Dims
		if m.ModelID != "" {
			modelID = m.ModelID
		}
	}
	idx, err := index.Open(ctx, dir, index.OpenOptions{Dims: dims, MaxOpenConns: 1})
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	usage, err := index.DiskUsage(dir)
	if err != nil {
		return nil, err
	}
	return &cli.Status{
		Source: "local",
		Health: models.HealthResponse{
			OK:      true,
			Version: version,
			Model:   models.ModelInfo{ID: modelID, Dims: idx.Dims()},
			Index:   models.IndexStatus{Type: vector.IndexType, Docs: idx.Docs()},
		},
		IndexDir: dir,
		Manifest: idx.Manifest,
		Disk:     &usage,
	}, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `localsearch - Local semantic search over a flat vector index

Usage:
  localsearch serve [flags]                  Start the HTTP server
  localsearch build-index -input <corpus>    Build an index from a corpus
  localsearch search [flags] <query>         Search the index
  localsearch embed [flags] <text>           Print the embedding of a text
  localsearch status [flags]                 Show model and index status
  localsearch version                        Show version
  localsearch help                           Show this help

Common Flags:
  -config string     Config file path (default: /usr/local/etc/localsearch/config.yaml;
                     ./config.yaml is preferred when present)
  -data-dir string   Data directory holding index/ and model/
  -debug             Enable debug logging

Serve Flags:
  -port int          Base port; the first free port up to server.max_port is used
                     (env LOCALSEARCH_PORT also sets it)

Build Flags:
  -input string      Corpus: JSONL with docId/mangaId/title/text, plain text, .pdf, .xlsx or .docx
  -out string        Output index directory (default: index.dir)
  -doc-max-tokens    Token budget per document (default: embedding.doc_max_tokens)

Search / Embed / Status Flags:
  -server string     Server URL; empty opens the index or model directly
  -top-k int         Number of results (search only; default: search.default_top_k)
  -snippet           Include a text snippet per hit (search only)
  -raw               Skip L2 normalization (embed only)
  -output string     Output format: text or json

Examples:
  localsearch build-index -input corpus.jsonl
  localsearch serve -port 17777
  localsearch search -server http://127.0.0.1:17777 "pirate adventure"
  localsearch search -top-k 5 -snippet "pirate adventure"
  localsearch status -output json`)
}
