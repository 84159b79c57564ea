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


// Package semindex wires the chunker, embedding provider, vector store,
// document ledger, ingestion pipeline and searcher for one index directory.
package semindex

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/ai/openai"
	"github.com/poiesic/semindex/chunker"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/index"
	"github.com/poiesic/semindex/ingestion"
	"github.com/poiesic/semindex/metrics"
	"github.com/poiesic/semindex/reindex"
	"github.com/poiesic/semindex/search"
	"github.com/poiesic/semindex/storage"
	"github.com/poiesic/semindex/storage/badger"
)

// LedgerDir is the default ledger location inside the index directory.
const LedgerDir = "ledger"

// ErrLedgerDisabled is returned by operations that need the document ledger
// when the engine was opened without one.
var ErrLedgerDisabled = errors.New("document ledger disabled")

// ErrEngineClosed is returned by operations on a closed engine.
var ErrEngineClosed = errors.New("engine closed")

// Stats describes an engine's store and ledger.
type Stats struct {
	Size       int         `json:"size"`
	Dimension  int         `json:"dimension"`
	Metric     core.Metric `json:"metric"`
	Generation string      `json:"generation,omitempty"`
	Documents  int         `json:"documents"`
	LedgerSize int64       `json:"ledger_size"` // bytes on disk
	Model      string      `json:"model,omitempty"`
}

// Engine is the single writer and an in-process reader of one index
// directory.
type Engine struct {
	dir          string
	opts         *options
	backend      *badger.Backend
	docs         storage.DocumentRepository
	checkpoints  storage.CheckpointRepository
	provider     ai.AIProvider
	ownsProvider bool
	model        string
	chunker      *chunker.Chunker
	metrics      *metrics.Metrics
	logger       *slog.Logger

	// writeMu is held shared by Index and Submit and exclusively by Reindex
	// and Close, so a rebuild is the only writer of the directory.
	writeMu sync.RWMutex

	mu       sync.RWMutex // guards the components below, swapped by Reindex
	store    *index.Store
	pipeline *ingestion.Pipeline
	searcher *search.Searcher
	closed   bool
}

// Open opens or creates the index in dir and wires its components.
// On error every component opened so far is closed again.
func Open(dir string, opts ...Option) (*Engine, error) {
	if dir == "" {
		return nil, index.ErrDirRequired
	}

	o := &options{
		metric:    core.MetricInnerProduct,
		cacheSize: search.DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		dir:     dir,
		opts:    o,
		metrics: o.metrics,
		logger:  logger.With("component", "engine"),
	}

	if err := e.open(); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) open() error {
	o := e.opts

	chunkerOpts := []chunker.Option{chunker.WithSummaryFromFirstSentence(!o.noSummary)}
	if o.wordBudget > 0 {
		chunkerOpts = append(chunkerOpts, chunker.WithWordBudget(o.wordBudget))
	}
	c, err := chunker.New(chunkerOpts...)
	if err != nil {
		return err
	}
	e.chunker = c

	// Open the ledger first; the checkpoint tells us which model built the store.
	if !o.ledgerDisabled {
		path := o.ledgerPath
		if path == "" && !o.ledgerInMemory {
			path = filepath.Join(e.dir, LedgerDir)
		}
		backend, err := badger.OpenBackend(path, o.ledgerInMemory)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		e.backend = backend

		docs, err := badger.NewDocumentRepository(backend)
		if err != nil {
			return err
		}
		e.docs = docs
		e.checkpoints = badger.NewCheckpointRepository(backend)
	}

	// Create AI provider with configured settings
	if o.provider != nil {
		e.provider = o.provider
	} else {
		aiConfig := o.aiConfig
		if aiConfig == nil {
			aiConfig = ai.DefaultConfig()
		}
		provider, err := openai.NewProvider(aiConfig)
		if err != nil {
			return fmt.Errorf("failed to create embedding provider: %w", err)
		}
		e.provider = provider
		e.ownsProvider = true
		e.model = aiConfig.EmbeddingModel
	}

	store, err := index.Open(e.dir, e.storeOptions()...)
	if err != nil {
		return err
	}
	e.checkModel(store)

	return e.attach(store)
}

func (e *Engine) storeOptions() []index.Option {
	opts := []index.Option{
		index.WithMetric(e.opts.metric),
		index.WithLogger(e.logger.With("component", "store")),
	}
	if e.opts.keepGenerations > 0 {
		opts = append(opts, index.WithKeepGenerations(e.opts.keepGenerations))
	}
	return opts
}

// checkModel warns when the store was built with a different model.
func (e *Engine) checkModel(store *index.Store) {
	if e.checkpoints == nil || e.model == "" || !store.Exists() {
		return
	}
	cp, err := e.checkpoints.LoadCheckpoint(context.Background(), e.dir)
	if err != nil {
		e.logger.Warn("error loading checkpoint", "err", err)
		return
	}
	if cp != nil && cp.Model != "" && cp.Model != e.model {
		e.logger.Warn("index was built with a different embedding model; run reindex",
			"indexModel", cp.Model, "model", e.model)
	}
}

// attach builds the pipeline and searcher around store.
func (e *Engine) attach(store *index.Store) error {
	o := e.opts

	pipelineOpts := []ingestion.Option{
		ingestion.WithLogger(e.logger.With("component", "pipeline")),
		ingestion.WithChunker(e.chunker),
		ingestion.WithMetrics(e.metrics),
	}
	if o.batchSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithBatchSize(o.batchSize))
	}
	if o.queueSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithQueueSize(o.queueSize))
	}
	if e.docs != nil {
		pipelineOpts = append(pipelineOpts,
			ingestion.WithLedger(e.docs),
			ingestion.WithCheckpoints(e.checkpoints, e.model))
	}
	pipeline, err := ingestion.NewPipeline(store, e.provider, pipelineOpts...)
	if err != nil {
		return err
	}

	searchOpts := []search.Option{
		search.WithStore(store),
		search.WithLogger(e.logger.With("component", "searcher")),
		search.WithMetrics(e.metrics),
		search.WithCacheSize(o.cacheSize),
	}
	if o.defaultK > 0 {
		searchOpts = append(searchOpts, search.WithDefaultK(o.defaultK))
	}
	searcher, err := search.NewSearcher(e.dir, e.provider.Embedder(), searchOpts...)
	if err != nil {
		pipeline.Release()
		return err
	}

	e.mu.Lock()
	e.store = store
	e.pipeline = pipeline
	e.searcher = searcher
	e.mu.Unlock()

	e.metrics.SetStoreSize(store.Size())
	return nil
}

// Dir returns the index directory.
func (e *Engine) Dir() string {
	return e.dir
}

// Index indexes docs synchronously and commits a new generation when
// anything was added.
func (e *Engine) Index(ctx context.Context, docs ...*core.Document) (core.IndexSummary, error) {
	e.writeMu.RLock()
	defer e.writeMu.RUnlock()

	pipeline := e.currentPipeline()
	if pipeline == nil {
		return core.IndexSummary{}, ErrEngineClosed
	}
	return pipeline.Index(ctx, docs...)
}

// Submit queues doc for asynchronous indexing. It blocks while a Reindex
// is running.
func (e *Engine) Submit(doc *core.Document, callback func(core.IndexSummary, error)) error {
	e.writeMu.RLock()
	defer e.writeMu.RUnlock()

	pipeline := e.currentPipeline()
	if pipeline == nil {
		return ErrEngineClosed
	}
	return pipeline.Submit(doc, callback)
}

// Wait blocks until every submitted document has been indexed.
func (e *Engine) Wait() {
	if pipeline := e.currentPipeline(); pipeline != nil {
		pipeline.Wait()
	}
}

func (e *Engine) currentPipeline() *ingestion.Pipeline {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pipeline
}

// Search returns up to k hits for query. k <= 0 uses the default.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]core.Hit, error) {
	e.mu.RLock()
	searcher := e.searcher
	e.mu.RUnlock()
	if searcher == nil {
		return nil, ErrEngineClosed
	}
	return searcher.Search(ctx, query, k)
}

// Size returns the number of vectors in the store.
func (e *Engine) Size() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Size()
}

// Dimension returns the store dimension, or 0 before the first append.
func (e *Engine) Dimension() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Dimension()
}

// Metric returns the store metric.
func (e *Engine) Metric() core.Metric {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Metric()
}

// Generation returns the committed generation, or "" before the first persist.
func (e *Engine) Generation() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Generation()
}

// CountDocuments returns the number of ledger documents.
func (e *Engine) CountDocuments(ctx context.Context) (int, error) {
	if e.docs == nil {
		return 0, ErrLedgerDisabled
	}
	return e.docs.CountDocuments(ctx)
}

// Ledger returns the document ledger, or nil when it is disabled.
func (e *Engine) Ledger() storage.DocumentRepository {
	return e.docs
}

// Metrics returns the metrics the engine records on, which may be nil.
func (e *Engine) Metrics() *metrics.Metrics {
	return e.metrics
}

// Stats reports store and ledger counts.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	e.mu.RLock()
	stats := Stats{
		Size:       e.store.Size(),
		Dimension:  e.store.Dimension(),
		Metric:     e.store.Metric(),
		Generation: e.store.Generation(),
		Model:      e.model,
	}
	e.mu.RUnlock()

	if e.docs != nil {
		count, err := e.docs.CountDocuments(ctx)
		if err != nil {
			return stats, fmt.Errorf("failed to count documents: %w", err)
		}
		stats.Documents = count
	}
	if e.backend != nil {
		stats.LedgerSize = e.backend.DiskSize()
	}
	if e.checkpoints != nil && stats.Model == "" {
		if cp, err := e.checkpoints.LoadCheckpoint(ctx, e.dir); err == nil && cp != nil {
			stats.Model = cp.Model
		}
	}
	return stats, nil
}

// Reindex rebuilds the store from the ledger with the current provider and
// swaps the engine onto the new generation. progress may be nil. On error
// the engine keeps serving the previous generation.
func (e *Engine) Reindex(ctx context.Context, cfg *reindex.Config, progress io.Writer) (*reindex.Result, error) {
	if e.docs == nil {
		return nil, ErrLedgerDisabled
	}
	if cfg == nil {
		cfg = reindex.DefaultConfig()
	}
	cfg.Metric = e.Metric()
	if cfg.Model == "" {
		cfg.Model = e.model
	}

	// Hold off new writes and drain queued ones until the swap is done.
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.currentPipeline() == nil {
		return nil, ErrEngineClosed
	}
	e.Wait()

	r, err := reindex.NewReindexer(e.docs, e.checkpoints, e.provider.Embedder(), e.dir, cfg, progress)
	if err != nil {
		return nil, err
	}
	result, err := r.Run(ctx)
	if err != nil {
		return nil, err
	}

	store, err := index.Open(e.dir, e.storeOptions()...)
	if err != nil {
		return nil, fmt.Errorf("failed to reopen rebuilt store: %w", err)
	}

	e.mu.RLock()
	oldPipeline, oldSearcher := e.pipeline, e.searcher
	e.mu.RUnlock()

	if err := e.attach(store); err != nil {
		return nil, err
	}
	oldPipeline.Release()
	if err := oldSearcher.Close(); err != nil {
		e.logger.Warn("error closing searcher", "err", err)
	}
	return result, nil
}

// Close releases every component in reverse order of opening.
func (e *Engine) Close() error {
	var errs []error

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	pipeline, searcher := e.pipeline, e.searcher
	e.pipeline, e.searcher = nil, nil
	e.mu.Unlock()

	if pipeline != nil {
		pipeline.Release()
	}
	if searcher != nil {
		if err := searcher.Close(); err != nil {
			e.logger.Error("error closing searcher", "err", err)
			errs = append(errs, err)
		}
	}

	// Close AI provider
	if e.provider != nil && e.ownsProvider {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}

	// Close ledger backend
	if e.backend != nil {
		if err := e.backend.Close(); err != nil {
			e.logger.Error("error closing ledger", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
