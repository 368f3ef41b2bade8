// Package config loads RepoRAG configuration from YAML with environment
// overrides. Secrets are resolved lazily: a missing secret fails the first
// operation that needs it, not process startup.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/reporag/internal/errors"
)

// Environment variable names for secrets and overrides.
const (
	EnvVectorStoreAPIKey = "VECTOR_STORE_API_KEY"
	EnvEmbedAPIKey       = "EMBED_API_KEY"
	EnvLLMAPIKey         = "LLM_API_KEY"
	EnvVectorIndexName   = "VECTOR_INDEX_NAME"
	EnvPort              = "PORT"
)

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Fetch   FetchConfig   `yaml:"fetch"`
	Scanner ScannerConfig `yaml:"scanner"`
	Chunk   ChunkConfig   `yaml:"chunk"`
	Embed   EmbedConfig   `yaml:"embed"`
	Store   StoreConfig   `yaml:"store"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Search  SearchConfig  `yaml:"search"`
	Answer  AnswerConfig  `yaml:"answer"`
	LogLevel string       `yaml:"log_level"`
}

// ServerConfig configures the HTTP shell.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// FetchConfig configures repository acquisition.
type FetchConfig struct {
	// Timeout is the wall-clock limit for a clone.
	Timeout time.Duration `yaml:"timeout"`
}

// ScannerConfig configures file discovery.
type ScannerConfig struct {
	// MaxFileSize is the per-file byte limit. Larger files are skipped.
	MaxFileSize int64 `yaml:"max_file_size"`
}

// ChunkConfig configures the chunker.
type ChunkConfig struct {
	// TargetTokens is the preferred chunk size in embedder tokens.
	TargetTokens int `yaml:"target_tokens"`
	// MaxTokens is the hard upper bound per chunk.
	MaxTokens int `yaml:"max_tokens"`
	// OverlapChars is the character overlap between consecutive chunks.
	OverlapChars int `yaml:"overlap_chars"`
	// MinBytes is the threshold below which a file becomes a single chunk.
	MinBytes int `yaml:"min_bytes"`
}

// EmbedConfig configures the embedding provider.
type EmbedConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	// Timeout is the per-request limit.
	Timeout   time.Duration `yaml:"timeout"`
	CacheSize int           `yaml:"cache_size"`
}

// StoreConfig configures the vector store.
type StoreConfig struct {
	// Backend selects the implementation: "remote" or "memory".
	Backend   string        `yaml:"backend"`
	BaseURL   string        `yaml:"base_url"`
	IndexName string        `yaml:"index_name"`
	// UpsertTimeout is the per-upsert limit.
	UpsertTimeout time.Duration `yaml:"upsert_timeout"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// BatchSize is the embedding/upsert micro-batch size B (floor 1).
	BatchSize int `yaml:"batch_size"`
	// Concurrency is the bound C on in-flight upserts.
	Concurrency int `yaml:"concurrency"`
	// MaxConsecutiveSkips aborts the job when exceeded.
	MaxConsecutiveSkips int `yaml:"max_consecutive_skips"`
	// JobTimeout is the whole-job wall-clock limit.
	JobTimeout time.Duration `yaml:"job_timeout"`
	// GCBetweenBatches requests a memory-release hint between micro-batches.
	GCBetweenBatches bool `yaml:"gc_between_batches"`
}

// SearchConfig configures hybrid retrieval.
type SearchConfig struct {
	TopKDense  int `yaml:"top_k_dense"`
	TopKSparse int `yaml:"top_k_sparse"`
	// MinCandidates is the floor M below which filters are dropped.
	MinCandidates int     `yaml:"min_candidates"`
	RRFConstant   int     `yaml:"rrf_constant"`
	DenseWeight   float64 `yaml:"dense_weight"`
	SparseWeight  float64 `yaml:"sparse_weight"`
	// SelectivityMin/Max bound the pre-filter gate.
	SelectivityMin float64 `yaml:"selectivity_min"`
	SelectivityMax float64 `yaml:"selectivity_max"`
}

// AnswerConfig configures answer assembly and the LLM call.
type AnswerConfig struct {
	BaseURL       string        `yaml:"base_url"`
	Model         string        `yaml:"model"`
	ContextChunks int           `yaml:"context_chunks"`
	ContextTokens int           `yaml:"context_tokens"`
	MaxTokens     int           `yaml:"max_tokens"`
	Temperature   float64       `yaml:"temperature"`
	Timeout       time.Duration `yaml:"timeout"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
}

// Default returns the consolidated defaults.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8000},
		Fetch:   FetchConfig{Timeout: 120 * time.Second},
		Scanner: ScannerConfig{MaxFileSize: 1 << 20},
		Chunk: ChunkConfig{
			TargetTokens: 512,
			MaxTokens:    1024,
			OverlapChars: 200,
			MinBytes:     100,
		},
		Embed: EmbedConfig{
			Model:      "text-embedding-004",
			Dimensions: 768,
			Timeout:    30 * time.Second,
			CacheSize:  4096,
		},
		Store: StoreConfig{
			Backend:       "remote",
			IndexName:     "reporag",
			UpsertTimeout: 15 * time.Second,
		},
		Ingest: IngestConfig{
			BatchSize:           8,
			Concurrency:         4,
			MaxConsecutiveSkips: 50,
			JobTimeout:          10 * time.Minute,
			GCBetweenBatches:    true,
		},
		Search: SearchConfig{
			TopKDense:      40,
			TopKSparse:     40,
			MinCandidates:  5,
			RRFConstant:    60,
			DenseWeight:    1.0,
			SparseWeight:   0.5,
			SelectivityMin: 0.10,
			SelectivityMax: 0.50,
		},
		Answer: AnswerConfig{
			Model:         "llama-3.1-8b-instant",
			ContextChunks: 10,
			ContextTokens: 8000,
			MaxTokens:     2048,
			Temperature:   0.1,
			Timeout:       60 * time.Second,
			CacheTTL:      5 * time.Minute,
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path (if it exists) over the defaults,
// then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvVectorIndexName); v != "" {
		c.Store.IndexName = v
	}
	if v := os.Getenv(EnvPort); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.Server.Port = port
		}
	}
}

// Validate checks bounds that would otherwise fail deep in the pipeline.
func (c *Config) Validate() error {
	if c.Chunk.TargetTokens <= 0 || c.Chunk.MaxTokens < c.Chunk.TargetTokens {
		return fmt.Errorf("invalid chunk budget: target=%d max=%d", c.Chunk.TargetTokens, c.Chunk.MaxTokens)
	}
	if c.Ingest.BatchSize < 1 {
		c.Ingest.BatchSize = 1
	}
	if c.Ingest.BatchSize > 32 {
		c.Ingest.BatchSize = 32
	}
	if c.Ingest.Concurrency < 1 {
		c.Ingest.Concurrency = 1
	}
	if c.Search.SelectivityMin >= c.Search.SelectivityMax {
		return fmt.Errorf("invalid selectivity window: [%v, %v]", c.Search.SelectivityMin, c.Search.SelectivityMax)
	}
	return nil
}

// Secret resolves a secret environment variable at first use.
// Returns a ConfigError when the variable is unset or empty.
func Secret(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", errors.Newf(errors.KindConfig, "required secret %s is not set", name)
	}
	return v, nil
}
