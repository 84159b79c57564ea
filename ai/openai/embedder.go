package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/core"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// ErrCountMismatch indicates the service returned a different number of
// vectors than texts sent.
var ErrCountMismatch = errors.New("embedding count mismatch")

// Embedder implements ai.Embedder using OpenAI-compatible embedding APIs.
// Large inputs are split into sub-batches that run concurrently on a worker
// pool; results are reassembled in input order.
type Embedder struct {
	embedder   embeddings.Embedder
	pool       *ants.Pool
	limiter    *rate.Limiter
	batchSize  int
	maxRetries int
	retryDelay time.Duration
	timeout    time.Duration
	logger     *slog.Logger
}

// newEmbedder is an internal constructor that returns the concrete type.
// Used by Provider to manage the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible services accept any token.
	token := config.APIKey
	if token == "" {
		token = "none"
	}
	client, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(config.BatchSize),
	)
	if err != nil {
		return nil, err
	}

	return newEmbedderWithClient(config, embedder)
}

// newEmbedderWithClient wires the batching, pacing and retry policy around
// an arbitrary langchaingo embedder.
func newEmbedderWithClient(config *ai.Config, embedder embeddings.Embedder) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(config.Concurrency)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}

	return &Embedder{
		embedder:   embedder,
		pool:       pool,
		limiter:    rate.NewLimiter(limit, config.Concurrency),
		batchSize:  config.BatchSize,
		maxRetries: config.MaxRetries,
		retryDelay: config.RetryDelay,
		timeout:    config.Timeout,
		logger:     slog.Default().With("component", "openai-embedder"),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
//
// Returns ai.Embedder interface to enforce abstraction.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	e.logger.Debug("generating embedding for single text", "length", len(text))

	out := make([][]float32, 1)
	if err := e.embedBatch(ctx, []string{text}, out); err != nil {
		e.logger.Error("failed to generate embedding", "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrProvider, err)
	}
	return out[0], nil
}

// EmbedTexts generates vector embeddings for multiple text strings.
// Either every text is embedded or an error wrapping core.ErrProvider is
// returned.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings for texts", "count", len(texts))
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			if err := e.embedBatch(ctx, texts[start:end], results[start:end]); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("texts %d-%d: %w", start, end-1, err))
				mu.Unlock()
			}
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrProvider, err)
	}
	return results, nil
}

// embedBatch embeds one request-sized batch into out, retrying with backoff.
func (e *Embedder) embedBatch(ctx context.Context, batch []string, out [][]float32) error {
	// langchaingo rewrites newlines in place; keep the caller's slice intact.
	batch = slices.Clone(batch)
	return ai.RetryWithBackoff(ctx, func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		vectors, err := e.embedder.EmbedDocuments(callCtx, batch)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return ai.Permanent(fmt.Errorf("%w: sent %d, got %d", ErrCountMismatch, len(batch), len(vectors)))
		}
		copy(out, vectors)
		return nil
	}, e.maxRetries, e.retryDelay)
}

// Close releases the worker pool.
func (e *Embedder) Close() error {
	e.pool.Release()
	return nil
}
