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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/canonical"
	"github.com/poiesic/semindex/chunker"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/index"
	"github.com/poiesic/semindex/metrics"
	"github.com/poiesic/semindex/storage"
)

const (
	// DefaultBatchSize is the number of items sent to the embedder per call.
	DefaultBatchSize = 64

	// DefaultQueueSize bounds the documents waiting on the asynchronous queue.
	DefaultQueueSize = 256
)

// Pipeline orchestrates chunking, embedding and storage of documents.
// It is the single writer of its store.
type Pipeline struct {
	store         *index.Store
	chunker       *chunker.Chunker
	embeddingProc processor
	embedder      ai.Embedder
	ledger        storage.DocumentRepository
	checkpoints   storage.CheckpointRepository
	model         string
	metrics       *metrics.Metrics
	queue         *ants.Pool
	queueSize     int
	batchSize     int
	logger        *slog.Logger

	mu     sync.Mutex // serializes Index
	wg     sync.WaitGroup
	closed bool
	cmu    sync.Mutex // guards closed
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithBatchSize sets how many items are embedded per provider call.
// Default is DefaultBatchSize.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return fmt.Errorf("batch size must be positive, got %d", size)
		}
		p.batchSize = size
		return nil
	}
}

// WithChunker sets the chunker used for documents that arrive as sentences.
// Default is a chunker with the default word budget.
func WithChunker(c *chunker.Chunker) Option {
	return func(p *Pipeline) error {
		if c == nil {
			return errors.New("chunker required")
		}
		p.chunker = c
		return nil
	}
}

// WithLedger records every accepted document in the document ledger.
func WithLedger(ledger storage.DocumentRepository) Option {
	return func(p *Pipeline) error {
		p.ledger = ledger
		return nil
	}
}

// WithCheckpoints saves a checkpoint naming the committed generation and the
// embedding model after every persist.
func WithCheckpoints(checkpoints storage.CheckpointRepository, model string) Option {
	return func(p *Pipeline) error {
		p.checkpoints = checkpoints
		p.model = model
		return nil
	}
}

// WithMetrics records indexing outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithQueueSize bounds the number of documents waiting on the
// asynchronous queue. Default is DefaultQueueSize.
func WithQueueSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.queueSize = size
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline writing into store.
func NewPipeline(store *index.Store, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	p := &Pipeline{
		store:     store,
		embedder:  provider.Embedder(),
		batchSize: DefaultBatchSize,
		queueSize: DefaultQueueSize,
		logger:    slog.Default().With("component", "pipeline"),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	if p.chunker == nil {
		c, err := chunker.New()
		if err != nil {
			return nil, err
		}
		p.chunker = c
	}

	// Create processor after options are applied (so it gets final config)
	embeddingProc, err := newEmbeddingProcessor(p.embedder, p.metrics, p.logger)
	if err != nil {
		return nil, err
	}
	p.embeddingProc = embeddingProc

	// One worker keeps asynchronous submissions in order and single-writer.
	queue, err := ants.NewPool(1, ants.WithMaxBlockingTasks(p.queueSize))
	if err != nil {
		return nil, err
	}
	p.queue = queue

	return p, nil
}

// Store returns the store the pipeline writes into.
func (p *Pipeline) Store() *index.Store {
	return p.store
}

// Index chunks, canonicalizes, embeds and appends docs, then persists the
// store when anything was added. Documents and batches that fail are
// counted in the summary's Failed field and their errors are joined into
// the returned error; processing continues with the rest. A store error
// stops the call after committing what was already appended.
func (p *Pipeline) Index(ctx context.Context, docs ...*core.Document) (core.IndexSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var summary core.IndexSummary
	var errs []error

	items, accepted, failed, docErrs := p.prepare(docs)
	summary.Failed += failed
	errs = append(errs, docErrs...)

	if p.ledger != nil && len(accepted) > 0 {
		if _, err := p.ledger.PutDocuments(ctx, accepted...); err != nil {
			p.logger.Error("error recording documents in ledger", "err", err)
			errs = append(errs, fmt.Errorf("ledger: %w", err))
		}
	}

	pending, skipped := p.dedupe(items)
	summary.SkippedDuplicate += skipped

	var storeErr error
	for start := 0; start < len(pending); start += p.batchSize {
		if err := ctx.Err(); err != nil {
			summary.Failed += len(pending) - start
			errs = append(errs, err)
			break
		}

		end := min(start+p.batchSize, len(pending))
		batch := pending[start:end]

		embedded, err := p.embeddingProc.process(ctx, batch)
		if err != nil {
			summary.Failed += len(batch)
			errs = append(errs, err)
			continue
		}

		appended, err := p.store.Append(embedded)
		if err != nil {
			p.logger.Error("error appending to store", "err", err)
			summary.Failed += len(pending) - start
			storeErr = err
			break
		}
		summary.Merge(appended)
	}

	if summary.Added > 0 {
		if err := p.persist(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if storeErr != nil {
		errs = append(errs, storeErr)
	}

	p.metrics.RecordIndex(summary)
	p.logger.Info("indexed documents",
		"documents", len(docs),
		"added", summary.Added,
		"skippedDuplicate", summary.SkippedDuplicate,
		"failed", summary.Failed)

	return summary, errors.Join(errs...)
}

// prepare chunks and canonicalizes docs. It returns the items of every
// usable document, the augmented documents for the ledger, and the number
// of failed chunks with their errors. A rejected document counts every
// chunk it carries, or one when it has none.
func (p *Pipeline) prepare(docs []*core.Document) ([]core.Item, []*core.Document, int, []error) {
	var (
		items    []core.Item
		accepted []*core.Document
		failed   int
		errs     []error
	)
	for i, doc := range docs {
		if doc == nil {
			failed++
			errs = append(errs, fmt.Errorf("document %d: %w", i, core.ErrInvalidDocument))
			p.metrics.RecordDocument(core.ErrInvalidDocument)
			continue
		}

		// Work on a copy so the caller's record is left as submitted.
		d := *doc
		p.chunker.ChunkDocument(&d)

		if err := core.ValidateDocument(&d); err != nil {
			failed += chunkCount(&d)
			errs = append(errs, fmt.Errorf("document %q: %w", d.DocID, err))
			p.metrics.RecordDocument(err)
			continue
		}

		docItems, err := canonical.Document(&d)
		if err != nil {
			p.logger.Warn("document has no indexable chunks", "docID", d.DocID)
			failed += chunkCount(&d)
			errs = append(errs, fmt.Errorf("document %q: %w", d.DocID, err))
			p.metrics.RecordDocument(err)
			continue
		}

		items = append(items, docItems...)
		accepted = append(accepted, &d)
		p.metrics.RecordDocument(nil)
	}
	return items, accepted, failed, errs
}

func chunkCount(doc *core.Document) int {
	return max(1, len(doc.Chunks))
}

// dedupe drops items already in the store or earlier in items, so they are
// never sent to the embedder.
func (p *Pipeline) dedupe(items []core.Item) ([]core.Item, int) {
	pending := make([]core.Item, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	skipped := 0
	for _, item := range items {
		hash := item.Metadata.ContentHash
		if _, ok := seen[hash]; ok || p.store.Contains(hash) {
			skipped++
			continue
		}
		seen[hash] = struct{}{}
		pending = append(pending, item)
	}
	return pending, skipped
}

// persist commits the store and records the new generation.
func (p *Pipeline) persist(ctx context.Context) error {
	err := p.store.Persist()
	p.metrics.RecordPersist(p.store.Size(), err)
	if err != nil {
		p.logger.Error("error persisting store", "err", err)
		return fmt.Errorf("failed to persist store: %w", err)
	}

	if p.checkpoints != nil {
		checkpoint := &storage.Checkpoint{
			Name:       p.store.Dir(),
			Generation: p.store.Generation(),
			Size:       p.store.Size(),
			Dimension:  p.store.Dimension(),
			Metric:     p.store.Metric(),
			Model:      p.model,
		}
		if err := p.checkpoints.SaveCheckpoint(ctx, checkpoint); err != nil {
			p.logger.Warn("error saving checkpoint", "generation", checkpoint.Generation, "err", err)
		}
	}
	return nil
}

// Submit queues doc for indexing and returns immediately. Documents are
// indexed one at a time in submission order. callback, when not nil,
// receives the result.
func (p *Pipeline) Submit(doc *core.Document, callback func(core.IndexSummary, error)) error {
	p.cmu.Lock()
	defer p.cmu.Unlock()
	if p.closed {
		return ErrPipelineClosed
	}

	p.wg.Add(1)
	err := p.queue.Submit(func() {
		defer p.wg.Done()
		summary, err := p.Index(context.Background(), doc)
		if err != nil {
			p.logger.Error("error indexing submitted document", "err", err)
		}
		if callback != nil {
			callback(summary, err)
		}
	})
	if err != nil {
		p.wg.Done()
		if errors.Is(err, ants.ErrPoolOverload) {
			return ErrQueueFull
		}
		return err
	}
	return nil
}

// Wait blocks until every submitted document has been indexed.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Release drains the queue and releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	p.cmu.Lock()
	if p.closed {
		p.cmu.Unlock()
		return
	}
	p.closed = true
	p.cmu.Unlock()

	p.wg.Wait()
	if p.queue != nil {
		p.queue.Release()
	}
}
