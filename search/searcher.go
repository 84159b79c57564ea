package search

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/index"
	"github.com/poiesic/semindex/metrics"
)

const (
	// DefaultK is the number of hits returned when the caller asks for k <= 0.
	DefaultK = 3

	// DefaultCacheSize is the number of query embeddings kept in memory.
	DefaultCacheSize = 1024
)

// Searcher answers nearest-chunk queries against a persisted store.
type Searcher struct {
	dir       string
	embedder  ai.Embedder
	defaultK  int
	cacheSize int64
	cache     *ristretto.Cache[string, []float32]
	metrics   *metrics.Metrics
	logger    *slog.Logger

	mu     sync.Mutex
	store  *index.Store
	shared bool
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithDefaultK sets the hit count used when Search is called with k <= 0.
// Default is 3.
func WithDefaultK(k int) Option {
	return func(s *Searcher) error {
		if k <= 0 {
			return fmt.Errorf("%w: default k must be positive, got %d", core.ErrValidation, k)
		}
		s.defaultK = k
		return nil
	}
}

// WithCacheSize sets how many query embeddings are cached. Zero disables
// the cache. Default is 1024.
func WithCacheSize(n int) Option {
	return func(s *Searcher) error {
		if n < 0 {
			return fmt.Errorf("%w: cache size cannot be negative, got %d", core.ErrValidation, n)
		}
		s.cacheSize = int64(n)
		return nil
	}
}

// WithMetrics records query counts, latency and cache hits.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Searcher) error {
		s.metrics = m
		return nil
	}
}

// WithStore searches an in-process store instead of loading from disk.
// The store is searched only once it has been persisted at least once.
func WithStore(store *index.Store) Option {
	return func(s *Searcher) error {
		if store == nil {
			return ErrStoreRequired
		}
		s.store = store
		s.shared = true
		return nil
	}
}

// NewSearcher creates a searcher over the store persisted in dir.
// dir may be empty when WithStore is given.
func NewSearcher(dir string, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		dir:       dir,
		embedder:  embedder,
		defaultK:  DefaultK,
		cacheSize: DefaultCacheSize,
		logger:    slog.Default().With("component", "searcher"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.dir == "" && !s.shared {
		return nil, ErrDirRequired
	}

	if s.cacheSize > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
			NumCounters: s.cacheSize * 10,
			MaxCost:     s.cacheSize,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create query cache: %w", err)
		}
		s.cache = cache
	}

	return s, nil
}

// Search returns up to k chunks nearest to query, best first.
// k <= 0 uses the default. core.ErrNotFound is returned when no store has
// been committed yet.
func (s *Searcher) Search(ctx context.Context, query string, k int) ([]core.Hit, error) {
	return s.SearchWithMonitor(ctx, query, k, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, k int, monitor SearchMonitor) (hits []core.Hit, err error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	started := time.Now()
	defer func() {
		s.metrics.ObserveSearch(time.Since(started), err)
	}()

	// A missing store wins over a bad query.
	store, err := s.current()
	if err != nil {
		return nil, err
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.ErrEmptyQuery
	}
	if k <= 0 {
		k = s.defaultK
	}

	monitor.Start(query)
	monitor.AfterStoreLoad(store.Generation(), store.CommittedSize())

	vector, cached, err := s.embed(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.AfterEmbedding(vector, cached)

	hits, err = store.SearchCommitted(vector, k)
	if err != nil {
		s.logger.Error("error searching index", "generation", store.Generation(), "err", err)
		return nil, err
	}
	monitor.Finish(hits)

	return hits, nil
}

// current returns the store to search, reloading it when the committed
// generation on disk has changed.
func (s *Searcher) current() (*index.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shared {
		if !s.store.Exists() {
			return nil, fmt.Errorf("%w: store has not been persisted", core.ErrNotFound)
		}
		return s.store, nil
	}

	gen, err := index.CurrentGeneration(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.store = nil
			return nil, fmt.Errorf("%w: %s", core.ErrNotFound, s.dir)
		}
		return nil, err
	}
	if s.store != nil && s.store.Generation() == gen {
		return s.store, nil
	}

	store, err := index.Open(s.dir, index.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}
	if !store.Exists() {
		s.store = nil
		return nil, fmt.Errorf("%w: %s has no complete generation", core.ErrNotFound, s.dir)
	}
	s.logger.Debug("loaded index", "generation", store.Generation(), "size", store.Size())
	s.store = store
	return store, nil
}

func (s *Searcher) embed(ctx context.Context, query string) ([]float32, bool, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(query); ok {
			s.metrics.RecordQueryCache(true)
			return v, true, nil
		}
		s.metrics.RecordQueryCache(false)
	}

	vector, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		if errors.Is(err, core.ErrProvider) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("%w: %w", core.ErrProvider, err)
	}
	if len(vector) == 0 {
		return nil, false, fmt.Errorf("%w: empty query embedding", core.ErrProvider)
	}

	if s.cache != nil {
		s.cache.Set(query, vector, 1)
	}
	return vector, false, nil
}

// Close releases the query cache.
func (s *Searcher) Close() error {
	if s.cache != nil {
		s.cache.Close()
	}
	return nil
}
