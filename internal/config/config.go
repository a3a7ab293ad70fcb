// Package config provides configuration loading and structs for the localsearch server and index builder.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPort overrides Server.Port when set to a valid port number.
const EnvPort = "LOCALSEARCH_PORT"

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Build     BuildConfig     `yaml:"build"`
}

// ServerConfig holds HTTP server settings. The server binds the first free port in [Port, MaxPort].
type ServerConfig struct {
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	MaxPort              int    `yaml:"max_port"`
	ReadHeaderTimeoutSec int    `yaml:"read_header_timeout_sec"`
	RequestTimeoutSec    int    `yaml:"request_timeout_sec"`
	ShutdownTimeoutSec   int    `yaml:"shutdown_timeout_sec"`
}

// IndexConfig holds the location of the persisted index and how it is served.
type IndexConfig struct {
	Dir          string `yaml:"dir"`
	Watch        bool   `yaml:"watch"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// EmbeddingConfig holds ONNX embedder settings.
type EmbeddingConfig struct {
	ModelPath      string `yaml:"model_path"`
	TokenizerPath  string `yaml:"tokenizer_path"`
	OrtLibraryPath string `yaml:"ort_library_path"`
	ModelID        string `yaml:"model_id"`
	Dimensions     int    `yaml:"dimensions"`
	QueryMaxTokens int    `yaml:"query_max_tokens"`
	DocMaxTokens   int    `yaml:"doc_max_tokens"`
	CacheSize      int    `yaml:"cache_size"`
	QueueSize      int    `yaml:"queue_size"`
}

// SearchConfig holds query validation and result shaping settings.
type SearchConfig struct {
	DefaultTopK  int `yaml:"default_top_k"`
	SnippetChars int `yaml:"snippet_chars"`
	ScanWorkers  int `yaml:"scan_workers"`
}

// BuildConfig holds index builder settings.
type BuildConfig struct {
	ProgressEvery int `yaml:"progress_every"`
}

// Default returns a config with all defaults applied, for running without a config file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)
	return &cfg
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	tokenizerSet := cfg.Embedding.TokenizerPath != ""

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Index.Dir = expandPath(cfg.Index.Dir, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	if tokenizerSet {
		cfg.Embedding.TokenizerPath = expandPath(cfg.Embedding.TokenizerPath, configDir)
	} else {
		cfg.Embedding.TokenizerPath = filepath.Join(filepath.Dir(cfg.Embedding.ModelPath), tokenizerFileName)
	}
	if cfg.Embedding.OrtLibraryPath != "" {
		cfg.Embedding.OrtLibraryPath = expandPath(cfg.Embedding.OrtLibraryPath, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv applies environment overrides. An unparsable LOCALSEARCH_PORT is ignored.
func ApplyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 && port <= 65535 {
			cfg.Server.Port = port
			if cfg.Server.MaxPort < port {
				cfg.Server.MaxPort = port + defaultPortRange
			}
		}
	}
}

// UseDataDir points the index and model paths at the conventional layout under dir:
// <dir>/index, <dir>/model/bge-m3.onnx and <dir>/model/tokenizer.json.
func (c *Config) UseDataDir(dir string) {
	abs, err := filepath.Abs(dir)
	if err == nil {
		dir = abs
	}
	c.Index.Dir = filepath.Join(dir, "index")
	c.Embedding.ModelPath = filepath.Join(dir, "model", modelFileName)
	c.Embedding.TokenizerPath = filepath.Join(dir, "model", tokenizerFileName)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
