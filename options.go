package semindex

import (
	"log/slog"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/config"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/metrics"
)

// Option configures an Engine.
type Option func(*options)

type options struct {
	aiConfig        *ai.Config
	provider        ai.AIProvider
	metric          core.Metric
	keepGenerations int
	wordBudget      int
	noSummary       bool
	batchSize       int
	queueSize       int
	defaultK        int
	cacheSize       int
	ledgerPath      string
	ledgerInMemory  bool
	ledgerDisabled  bool
	metrics         *metrics.Metrics
	logger          *slog.Logger
}

// WithAIConfig sets the configuration of the OpenAI-compatible provider
// the engine creates. Ignored when WithProvider is used.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) {
		o.aiConfig = cfg
	}
}

// WithProvider injects an embedding provider. The engine does not close it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithMetric sets the similarity function of a new store.
func WithMetric(metric core.Metric) Option {
	return func(o *options) {
		o.metric = metric
	}
}

// WithKeepGenerations sets how many committed generations stay on disk.
func WithKeepGenerations(n int) Option {
	return func(o *options) {
		o.keepGenerations = n
	}
}

// WithWordBudget sets the chunker word budget.
func WithWordBudget(words int) Option {
	return func(o *options) {
		o.wordBudget = words
	}
}

// WithBatchSize sets how many chunks are embedded per provider call.
func WithBatchSize(size int) Option {
	return func(o *options) {
		o.batchSize = size
	}
}

// WithQueueSize bounds the asynchronous submission queue.
func WithQueueSize(size int) Option {
	return func(o *options) {
		o.queueSize = size
	}
}

// WithDefaultK sets the number of hits returned when a query gives no k.
func WithDefaultK(k int) Option {
	return func(o *options) {
		o.defaultK = k
	}
}

// WithCacheSize sets the query embedding cache capacity. Zero disables it.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// WithLedgerPath places the document ledger at path instead of inside the
// index directory.
func WithLedgerPath(path string) Option {
	return func(o *options) {
		o.ledgerPath = path
	}
}

// WithInMemoryLedger keeps the document ledger in memory.
func WithInMemoryLedger() Option {
	return func(o *options) {
		o.ledgerInMemory = true
	}
}

// WithoutLedger disables the document ledger. Reindex is unavailable.
func WithoutLedger() Option {
	return func(o *options) {
		o.ledgerDisabled = true
	}
}

// WithMetrics records engine activity on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithConfig applies every engine setting of a loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(o *options) {
		o.aiConfig = cfg.AIConfig()
		o.metric = core.Metric(cfg.Index.Metric)
		o.keepGenerations = cfg.Index.KeepGenerations
		o.wordBudget = cfg.Chunker.WordBudget
		o.noSummary = cfg.Chunker.DisableSummary
		o.batchSize = cfg.Ingest.BatchSize
		o.queueSize = cfg.Ingest.QueueSize
		o.defaultK = cfg.Search.DefaultK
		o.cacheSize = max(cfg.Search.CacheSize, 0)
		o.ledgerPath = cfg.Ledger.Path
		o.ledgerDisabled = cfg.Ledger.Disabled
	}
}
