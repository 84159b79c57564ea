// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/index"
	"github.com/poiesic/semindex/ingestion"
	"github.com/poiesic/semindex/search"
)

const (
	// EnvPrefix marks the environment variables that override the file.
	EnvPrefix = "SEMINDEX_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// Load reads configuration from the YAML file at path, then overrides it
// with SEMINDEX_ environment variables, applies defaults and validates.
//
// Precedence (highest to lowest):
//  1. Environment variables (SEMINDEX_INDEX_DIR, SEMINDEX_EMBEDDING_MODEL, ...)
//  2. YAML config file
//  3. Defaults
//
// An empty path skips the file. A path that does not exist is an error.
//
// Environment variables map onto YAML keys by dropping the prefix and
// splitting on the first underscore:
//
//	SEMINDEX_INDEX_DIR              -> index.dir
//	SEMINDEX_EMBEDDING_API_KEY      -> embedding.api_key
//	SEMINDEX_SERVER_SHUTDOWN_TIMEOUT -> server.shutdown_timeout
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps SEMINDEX_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile reads path after checking its size on the opened file.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Index defaults
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = "./semindex-data"
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = string(core.MetricInnerProduct)
	}
	if cfg.Index.KeepGenerations == 0 {
		cfg.Index.KeepGenerations = index.DefaultKeepGenerations
	}

	if cfg.Chunker.WordBudget == 0 {
		cfg.Chunker.WordBudget = 100
	}

	// Embedding defaults follow the provider's own
	defaults := ai.DefaultConfig()
	if cfg.Embedding.Host == "" {
		cfg.Embedding.Host = defaults.EmbeddingHost
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = defaults.EmbeddingModel
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = defaults.BatchSize
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = defaults.Concurrency
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = defaults.MaxRetries
	}
	if cfg.Embedding.RetryDelay == 0 {
		cfg.Embedding.RetryDelay = defaults.RetryDelay
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = defaults.Timeout
	}

	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = ingestion.DefaultBatchSize
	}
	if cfg.Ingest.QueueSize == 0 {
		cfg.Ingest.QueueSize = ingestion.DefaultQueueSize
	}

	if cfg.Search.DefaultK == 0 {
		cfg.Search.DefaultK = search.DefaultK
	}
	if cfg.Search.CacheSize == 0 {
		cfg.Search.CacheSize = search.DefaultCacheSize
	}

	// Server defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8420
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
}
