package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
	assert.Equal(t, 128, cfg.BatchSize)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Zero(t, cfg.RequestsPerSecond)
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()

		assert.NotNil(t, cfg)
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, 128, cfg.BatchSize)
	})

	t.Run("with custom host and model", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://custom:8080/v1"),
			WithEmbeddingModel("text-embedding-3-small"),
		)

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	})

	t.Run("with multiple options", func(t *testing.T) {
		cfg := NewConfig(
			WithAPIKey("secret"),
			WithBatchSize(16),
			WithConcurrency(2),
			WithRetry(5, 200*time.Millisecond),
			WithTimeout(5*time.Second),
			WithRequestsPerSecond(10),
		)

		assert.Equal(t, "secret", cfg.APIKey)
		assert.Equal(t, 16, cfg.BatchSize)
		assert.Equal(t, 2, cfg.Concurrency)
		assert.Equal(t, 5, cfg.MaxRetries)
		assert.Equal(t, 200*time.Millisecond, cfg.RetryDelay)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
		assert.Equal(t, 10.0, cfg.RequestsPerSecond)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{name: "already has /v1", host: "http://localhost:11434/v1", expected: "http://localhost:11434/v1"},
		{name: "missing /v1", host: "http://localhost:11434", expected: "http://localhost:11434/v1"},
		{name: "has trailing slash", host: "http://localhost:11434/", expected: "http://localhost:11434/v1"},
		{name: "empty host", host: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host}
			cfg.Normalize()
			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.EmbeddingHost = "http://localhost:11434"

		err := cfg.Validate()
		assert.NoError(t, err)

		// Should also normalize
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "missing embedding host", mutate: func(c *Config) { c.EmbeddingHost = "" }, field: "EmbeddingHost"},
		{name: "missing embedding model", mutate: func(c *Config) { c.EmbeddingModel = "" }, field: "EmbeddingModel"},
		{name: "zero batch size", mutate: func(c *Config) { c.BatchSize = 0 }, field: "BatchSize"},
		{name: "zero concurrency", mutate: func(c *Config) { c.Concurrency = 0 }, field: "Concurrency"},
		{name: "zero retries", mutate: func(c *Config) { c.MaxRetries = 0 }, field: "MaxRetries"},
		{name: "negative retry delay", mutate: func(c *Config) { c.RetryDelay = -time.Second }, field: "RetryDelay"},
		{name: "zero timeout", mutate: func(c *Config) { c.Timeout = 0 }, field: "Timeout"},
		{name: "negative rate", mutate: func(c *Config) { c.RequestsPerSecond = -1 }, field: "RequestsPerSecond"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestConfigValidate_Integration(t *testing.T) {
	cfg := NewConfig()
	err := cfg.Validate()
	require.NoError(t, err)

	cfg = DefaultConfig()
	err = cfg.Validate()
	require.NoError(t, err)
}
