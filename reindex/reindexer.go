package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/chunker"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/index"
	"github.com/poiesic/semindex/storage"
)

// Config controls a rebuild.
type Config struct {
	// BatchSize is the number of ledger documents embedded per provider call
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Metric is the similarity function of the rebuilt store
	Metric core.Metric

	// Model names the embedding model, recorded in the checkpoint
	Model string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
		Metric:         core.MetricInnerProduct,
	}
}

// Result describes a finished rebuild.
type Result struct {
	Summary    core.IndexSummary
	Documents  int
	Skipped    int
	Generation string
	Elapsed    time.Duration
}

// Reindexer rebuilds the store in one index directory from the ledger.
type Reindexer struct {
	docs        storage.DocumentRepository
	checkpoints storage.CheckpointRepository
	embedder    ai.Embedder
	dir         string
	config      *Config
	progress    io.Writer
	processor   *BatchProcessor
	iterator    *DocumentIterator
	logger      *slog.Logger
}

// NewReindexer creates a reindexer. checkpoints and progress may be nil.
func NewReindexer(
	docs storage.DocumentRepository,
	checkpoints storage.CheckpointRepository,
	embedder ai.Embedder,
	dir string,
	config *Config,
	progress io.Writer,
) (*Reindexer, error) {
	if docs == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if dir == "" {
		return nil, ErrDirRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	c, err := chunker.New()
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "reindexer")

	return &Reindexer{
		docs:        docs,
		checkpoints: checkpoints,
		embedder:    embedder,
		dir:         dir,
		config:      config,
		progress:    progress,
		processor:   NewBatchProcessor(embedder, c, config.MaxRetries, config.RetryDelay, logger),
		iterator:    NewDocumentIterator(docs, config.BatchSize),
		logger:      logger,
	}, nil
}

// Run embeds every ledger document into a fresh store and commits it.
// On any error the current generation stays in place.
func (r *Reindexer) Run(ctx context.Context) (*Result, error) {
	total, err := r.docs.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No documents found in ledger (0 documents)\n")
		return nil, ErrNothingIndexed
	}

	metric := r.config.Metric
	if metric == "" {
		metric = core.MetricInnerProduct
	}
	store, err := index.New(r.dir, index.WithMetric(metric), index.WithLogger(r.logger))
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d documents (batch size: %d)\n",
		total, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	result := &Result{}
	err = r.iterator.ForEach(ctx, func(records []*storage.DocumentRecord) error {
		batch, err := r.processor.Process(ctx, store, records)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		result.Summary.Merge(batch.Summary)
		result.Documents += batch.Documents
		result.Skipped += batch.Skipped
		tracker.Advance(batch.Documents, batch.Chunks)
		return nil
	})
	if err != nil {
		return nil, err
	}
	tracker.Finish()

	if store.Size() == 0 {
		return nil, ErrNothingIndexed
	}
	if err := store.Persist(); err != nil {
		return nil, fmt.Errorf("failed to persist rebuilt index: %w", err)
	}

	result.Generation = store.Generation()
	result.Elapsed = tracker.Elapsed()

	if r.checkpoints != nil {
		checkpoint := &storage.Checkpoint{
			Name:       r.dir,
			Generation: store.Generation(),
			Size:       store.Size(),
			Dimension:  store.Dimension(),
			Metric:     store.Metric(),
			Model:      r.config.Model,
		}
		if err := r.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
			r.logger.Warn("failed to save checkpoint", "generation", checkpoint.Generation, "err", err)
		}
	}

	fmt.Fprintf(r.progress, "Reindex complete. %d chunks from %d documents into %s in %v\n",
		store.Size(), result.Documents, result.Generation, result.Elapsed.Round(time.Millisecond))
	r.logger.Info("reindex complete",
		"generation", result.Generation,
		"added", result.Summary.Added,
		"skippedDuplicate", result.Summary.SkippedDuplicate,
		"skippedDocuments", result.Skipped)

	return result, nil
}
