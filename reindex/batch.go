package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/canonical"
	"github.com/poiesic/semindex/chunker"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/index"
	"github.com/poiesic/semindex/storage"
)

// BatchResult is the outcome of one batch.
type BatchResult struct {
	Summary   core.IndexSummary
	Documents int
	Chunks    int
	Skipped   int // documents that produced no indexable chunk
}

// BatchProcessor canonicalizes a page of ledger documents, embeds their
// chunks in one provider call and appends them to a store.
type BatchProcessor struct {
	embedder       ai.Embedder
	chunker        *chunker.Chunker
	maxRetries     int
	retryBaseDelay time.Duration
	logger         *slog.Logger
}

// NewBatchProcessor creates a new batch processor. chunker may be nil, in
// which case documents without chunks are skipped.
func NewBatchProcessor(embedder ai.Embedder, c *chunker.Chunker, maxRetries int, retryBaseDelay time.Duration, logger *slog.Logger) *BatchProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchProcessor{
		embedder:       embedder,
		chunker:        c,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		logger:         logger,
	}
}

// Process indexes one batch into store. Provider failures abort the batch
// after retries and nothing from it is appended.
func (bp *BatchProcessor) Process(ctx context.Context, store *index.Store, records []*storage.DocumentRecord) (BatchResult, error) {
	var result BatchResult
	result.Documents = len(records)
	if len(records) == 0 {
		return result, nil
	}

	var items []core.Item
	for _, record := range records {
		doc := record.Document
		if bp.chunker != nil {
			bp.chunker.ChunkDocument(&doc)
		}
		docItems, err := canonical.Document(&doc)
		if err != nil {
			if errors.Is(err, core.ErrValidation) {
				bp.logger.Warn("skipping document", "docID", doc.DocID, "err", err)
				result.Skipped++
				continue
			}
			return result, err
		}
		items = append(items, docItems...)
	}
	result.Chunks = len(items)
	if len(items) == 0 {
		return result, nil
	}

	// Extract canonical text
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text
	}

	// Generate embeddings with retry
	var embeddings [][]float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		if !errors.Is(err, core.ErrProvider) {
			err = fmt.Errorf("%w: %w", core.ErrProvider, err)
		}
		return result, fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(items) {
		return result, fmt.Errorf("%w: embedding count mismatch: expected %d, got %d",
			core.ErrProvider, len(items), len(embeddings))
	}

	for i := range items {
		items[i].Vector = embeddings[i]
	}

	summary, err := store.Append(items)
	if err != nil {
		return result, fmt.Errorf("failed to append batch: %w", err)
	}
	result.Summary = summary
	return result, nil
}
