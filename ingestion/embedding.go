package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/metrics"
)

// embeddingProcessor attaches provider vectors to canonicalized items.
type embeddingProcessor struct {
	embedder ai.Embedder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

// newEmbeddingProcessor creates a new embedding processor.
func newEmbeddingProcessor(embedder ai.Embedder, m *metrics.Metrics, logger *slog.Logger) (processor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		embedder: embedder,
		metrics:  m,
		logger:   logger.With("processor", "embeddings"),
	}, nil
}

// process embeds the canonical text of every item in one provider call.
func (ep *embeddingProcessor) process(ctx context.Context, items []core.Item) ([]core.Item, error) {
	if len(items) == 0 {
		return nil, nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Text
	}

	ep.logger.Debug("generating embeddings", "items", len(texts))
	started := time.Now()
	embeddings, err := ep.embedder.EmbedTexts(ctx, texts)
	ep.metrics.ObserveEmbed(time.Since(started))
	if err != nil {
		ep.logger.Error("error generating embeddings", "err", err)
		if errors.Is(err, core.ErrProvider) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", core.ErrProvider, err)
	}

	if len(embeddings) != len(items) {
		return nil, fmt.Errorf("%w: embedding result mismatch. expected %d, received %d",
			core.ErrProvider, len(items), len(embeddings))
	}

	out := make([]core.Item, len(items))
	for i := range items {
		out[i] = items[i]
		out[i].Vector = embeddings[i]
	}
	return out, nil
}
