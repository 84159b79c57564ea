// Package config loads semindex configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/core"
)

// Config holds the complete semindex configuration.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Index     IndexConfig     `koanf:"index"`
	Chunker   ChunkerConfig   `koanf:"chunker"`
	Embedding EmbeddingConfig `koanf:"embedding"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Search    SearchConfig    `koanf:"search"`
	Ledger    LedgerConfig    `koanf:"ledger"`
	Server    ServerConfig    `koanf:"server"`
	Watch     WatchConfig     `koanf:"watch"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `koanf:"level"` // debug, info, warn, error
}

// IndexConfig holds vector store configuration.
type IndexConfig struct {
	Dir             string `koanf:"dir"`
	Metric          string `koanf:"metric"`
	KeepGenerations int    `koanf:"keep_generations"`
}

// ChunkerConfig holds chunking configuration.
type ChunkerConfig struct {
	WordBudget     int  `koanf:"word_budget"`
	DisableSummary bool `koanf:"disable_summary"` // skip the first-sentence chunk summary
}

// EmbeddingConfig holds embedding provider configuration.
type EmbeddingConfig struct {
	Host              string        `koanf:"host"`
	Model             string        `koanf:"model"`
	APIKey            string        `koanf:"api_key"`
	BatchSize         int           `koanf:"batch_size"`
	Concurrency       int           `koanf:"concurrency"`
	MaxRetries        int           `koanf:"max_retries"`
	RetryDelay        time.Duration `koanf:"retry_delay"`
	Timeout           time.Duration `koanf:"timeout"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
}

// IngestConfig holds write path configuration.
type IngestConfig struct {
	BatchSize int `koanf:"batch_size"`
	QueueSize int `koanf:"queue_size"`
}

// SearchConfig holds query engine configuration.
type SearchConfig struct {
	DefaultK  int `koanf:"default_k"`
	CacheSize int `koanf:"cache_size"` // negative disables the query cache
}

// LedgerConfig holds document ledger configuration. An empty Path places
// the ledger under the index directory.
type LedgerConfig struct {
	Path     string `koanf:"path"`
	Disabled bool   `koanf:"disabled"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"http_host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// WatchConfig holds inbox watcher configuration.
type WatchConfig struct {
	Dir           string `koanf:"dir"`
	MoveProcessed bool   `koanf:"move_processed"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Validate checks the configuration for values no component can accept.
func (c *Config) Validate() error {
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	if c.Index.Dir == "" {
		return errors.New("index dir is required")
	}
	switch core.Metric(c.Index.Metric) {
	case core.MetricInnerProduct, core.MetricL2:
	default:
		return fmt.Errorf("invalid index metric: %q (must be ip or l2)", c.Index.Metric)
	}
	if c.Index.KeepGenerations < 1 {
		return fmt.Errorf("invalid keep_generations: %d (must be at least 1)", c.Index.KeepGenerations)
	}

	if c.Chunker.WordBudget < 1 {
		return fmt.Errorf("invalid word_budget: %d (must be at least 1)", c.Chunker.WordBudget)
	}

	if err := c.AIConfig().Validate(); err != nil {
		return err
	}

	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("invalid ingest batch_size: %d", c.Ingest.BatchSize)
	}
	if c.Search.DefaultK < 1 {
		return fmt.Errorf("invalid search default_k: %d", c.Search.DefaultK)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	return nil
}

// AIConfig converts the embedding section into a provider configuration.
func (c *Config) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithAPIKey(c.Embedding.APIKey),
		ai.WithBatchSize(c.Embedding.BatchSize),
		ai.WithConcurrency(c.Embedding.Concurrency),
		ai.WithRetry(c.Embedding.MaxRetries, c.Embedding.RetryDelay),
		ai.WithTimeout(c.Embedding.Timeout),
		ai.WithRequestsPerSecond(c.Embedding.RequestsPerSecond),
	)
}

// ParseLevel maps a level name onto a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level: %q", level)
}
