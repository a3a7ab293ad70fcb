package config

import (
	"path/filepath"
	"runtime"
)

const (
	modelFileName     = "bge-m3.onnx"
	tokenizerFileName = "tokenizer.json"
	defaultPortRange  = 100
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 17777
	}
	if cfg.Server.MaxPort < cfg.Server.Port {
		cfg.Server.MaxPort = cfg.Server.Port + defaultPortRange
	}
	if cfg.Server.ReadHeaderTimeoutSec == 0 {
		cfg.Server.ReadHeaderTimeoutSec = 10
	}
	if cfg.Server.RequestTimeoutSec == 0 {
		cfg.Server.RequestTimeoutSec = 60
	}
	if cfg.Server.ShutdownTimeoutSec == 0 {
		cfg.Server.ShutdownTimeoutSec = 10
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = "/usr/local/var/localsearch/data/index"
	}
	if cfg.Index.MaxOpenConns == 0 {
		cfg.Index.MaxOpenConns = 4
	}
	if cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/localsearch/data/model/" + modelFileName
	}
	if cfg.Embedding.TokenizerPath == "" {
		cfg.Embedding.TokenizerPath = filepath.Join(filepath.Dir(cfg.Embedding.ModelPath), tokenizerFileName)
	}
	if cfg.Embedding.ModelID == "" {
		cfg.Embedding.ModelID = "BAAI/bge-m3"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1024
	}
	if cfg.Embedding.QueryMaxTokens == 0 {
		cfg.Embedding.QueryMaxTokens = 512
	}
	if cfg.Embedding.DocMaxTokens == 0 {
		cfg.Embedding.DocMaxTokens = 1024
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Embedding.QueueSize == 0 {
		cfg.Embedding.QueueSize = 64
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.SnippetChars == 0 {
		cfg.Search.SnippetChars = 200
	}
	if cfg.Search.ScanWorkers == 0 {
		cfg.Search.ScanWorkers = runtime.NumCPU()
	}
	if cfg.Build.ProgressEvery == 0 {
		cfg.Build.ProgressEvery = 1000
	}
}
