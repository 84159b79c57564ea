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


package index

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/poiesic/semindex/ai"
	"github.com/poiesic/semindex/core"
)

// DefaultKeepGenerations is how many committed generations stay on disk.
// Keeping the previous one lets a reader that resolved the old pointer
// finish loading it.
const DefaultKeepGenerations = 2

var (
	// ErrDirRequired is returned when Open or New is called without a directory.
	ErrDirRequired = errors.New("index directory required")

	// ErrRowOutOfRange is returned by Metadata for an index outside the store.
	ErrRowOutOfRange = errors.New("row out of range")
)

// Store is the persistent vector index. It holds three aligned collections:
// vectors, metadata records, and the search structure. Entry i of each
// describes the same chunk.
type Store struct {
	dir    string
	keep   int
	logger *slog.Logger

	mu         sync.RWMutex
	metric     core.Metric
	metricSet  bool
	dim        int
	vectors    [][]float32
	metadata   []core.Metadata
	flat       *Flat
	hashes     map[string]struct{}
	generation string
	dirty      bool
	committed  int // rows in the committed generation
}

// Option configures a Store.
type Option func(*Store) error

// WithMetric sets the similarity function for a fresh store.
// A store loaded from disk keeps the metric it was built with.
// Default is core.MetricInnerProduct.
func WithMetric(metric core.Metric) Option {
	return func(s *Store) error {
		switch metric {
		case core.MetricInnerProduct, core.MetricL2:
		default:
			return fmt.Errorf("%w: unknown metric %q", core.ErrValidation, metric)
		}
		s.metric = metric
		s.metricSet = true
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithKeepGenerations sets how many committed generations Persist retains.
func WithKeepGenerations(n int) Option {
	return func(s *Store) error {
		if n < 1 {
			return fmt.Errorf("%w: keep generations must be at least 1, got %d", core.ErrValidation, n)
		}
		s.keep = n
		return nil
	}
}

// New returns an empty store that will persist into dir. Existing
// generations in dir are left alone until the first Persist replaces the
// current pointer.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, ErrDirRequired
	}
	s := &Store{
		dir:    dir,
		keep:   DefaultKeepGenerations,
		logger: slog.Default().With("component", "index"),
		metric: core.MetricInnerProduct,
		hashes: make(map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Open loads the committed generation in dir. A missing directory, pointer
// or artifact yields an empty store. Artifacts that are present but
// inconsistent yield core.ErrCorruptStore.
func Open(dir string, opts ...Option) (*Store, error) {
	s, err := New(dir, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	gen, err := CurrentGeneration(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("no committed index, starting empty", "dir", s.dir)
			return nil
		}
		return err
	}

	genDir := filepath.Join(s.dir, gen)
	if err := checkArtifacts(genDir); err != nil {
		if errors.Is(err, errIncomplete) {
			s.logger.Warn("index generation incomplete, starting empty", "generation", gen, "err", err)
			return nil
		}
		return err
	}

	vecBytes, err := os.ReadFile(filepath.Join(genDir, VectorsFile))
	if err != nil {
		return err
	}
	metaBytes, err := os.ReadFile(filepath.Join(genDir, MetadataFile))
	if err != nil {
		return err
	}
	flatBytes, err := os.ReadFile(filepath.Join(genDir, FlatIndexFile))
	if err != nil {
		return err
	}

	metric, dim, vectors, err := unmarshalVectors(vecBytes)
	if err != nil {
		return corrupt(gen, VectorsFile, err)
	}
	records, err := unmarshalMetadata(metaBytes)
	if err != nil {
		return corrupt(gen, MetadataFile, err)
	}
	flat, err := unmarshalFlat(flatBytes)
	if err != nil {
		return corrupt(gen, FlatIndexFile, err)
	}

	if err := checkAlignment(metric, dim, vectors, records, flat); err != nil {
		return corrupt(gen, "", err)
	}

	hashes := make(map[string]struct{}, len(records))
	for i, m := range records {
		if _, dup := hashes[m.ContentHash]; dup {
			return corrupt(gen, MetadataFile, fmt.Errorf("record %d repeats content hash %s", i, m.ContentHash))
		}
		hashes[m.ContentHash] = struct{}{}
	}

	if s.metricSet && s.metric != metric {
		s.logger.Warn("ignoring requested metric, store was built with another",
			"requested", s.metric, "stored", metric)
	}

	s.metric = metric
	s.dim = dim
	s.vectors = vectors
	s.metadata = records
	s.flat = flat
	s.hashes = hashes
	s.generation = gen
	s.committed = len(records)
	s.logger.Debug("loaded index", "generation", gen, "size", len(records), "dimension", dim, "metric", metric)
	return nil
}

func checkAlignment(metric core.Metric, dim int, vectors [][]float32, records []core.Metadata, flat *Flat) error {
	if len(vectors) != len(records) || len(vectors) != flat.Len() {
		return fmt.Errorf("count mismatch: %d vectors, %d metadata records, %d index rows",
			len(vectors), len(records), flat.Len())
	}
	if metric != flat.Metric() {
		return fmt.Errorf("metric mismatch: vectors %q, index %q", metric, flat.Metric())
	}
	if dim != flat.Dim() {
		return fmt.Errorf("dimension mismatch: vectors %d, index %d", dim, flat.Dim())
	}
	for i, v := range vectors {
		if !slices.Equal(v, flat.data[i*dim:(i+1)*dim]) {
			return fmt.Errorf("vector %d differs from index row", i)
		}
	}
	return nil
}

func corrupt(gen, file string, err error) error {
	if file == "" {
		return fmt.Errorf("%w: %s: %w", core.ErrCorruptStore, gen, err)
	}
	return fmt.Errorf("%w: %s/%s: %w", core.ErrCorruptStore, gen, file, err)
}

// Append adds embedded items, skipping any whose content hash is already
// stored or appeared earlier in the same call. The whole call is validated
// first: on error nothing is appended.
func (s *Store) Append(items []core.Item) (core.IndexSummary, error) {
	var summary core.IndexSummary
	if len(items) == 0 {
		return summary, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dim
	for i, item := range items {
		if item.Metadata.ContentHash == "" {
			return summary, fmt.Errorf("%w: item %d has no content hash", core.ErrValidation, i)
		}
		if len(item.Vector) == 0 {
			return summary, fmt.Errorf("%w: item %d has no vector", core.ErrProvider, i)
		}
		if dim == 0 {
			dim = len(item.Vector)
		}
		if len(item.Vector) != dim {
			return summary, fmt.Errorf("%w: item %d has %d, store has %d",
				core.ErrDimensionMismatch, i, len(item.Vector), dim)
		}
	}

	newVectors := make([][]float32, 0, len(items))
	newRecords := make([]core.Metadata, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		hash := item.Metadata.ContentHash
		if _, ok := s.hashes[hash]; ok {
			summary.SkippedDuplicate++
			continue
		}
		if _, ok := seen[hash]; ok {
			summary.SkippedDuplicate++
			continue
		}
		seen[hash] = struct{}{}

		vec := slices.Clone(item.Vector)
		if s.metric.Normalized() {
			vec = ai.Normalize(vec)
		}
		record := item.Metadata
		record.Sentences = slices.Clone(record.Sentences)

		newVectors = append(newVectors, vec)
		newRecords = append(newRecords, record)
	}

	if len(newVectors) == 0 {
		return summary, nil
	}

	if s.flat == nil {
		flat, err := NewFlat(s.metric, dim)
		if err != nil {
			return summary, err
		}
		s.flat = flat
	}
	if err := s.flat.Add(newVectors...); err != nil {
		return summary, err
	}

	s.dim = dim
	s.vectors = append(s.vectors, newVectors...)
	s.metadata = append(s.metadata, newRecords...)
	for hash := range seen {
		s.hashes[hash] = struct{}{}
	}
	s.dirty = true
	summary.Added = len(newVectors)
	return summary, nil
}

// Persist commits the store as a new generation and swaps the current
// pointer to it. It does nothing when nothing was appended since the last
// load or persist.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}

	if err := ensureDir(s.dir); err != nil {
		return fmt.Errorf("failed to prepare index directory: %w", err)
	}
	gen, err := nextGeneration(s.dir)
	if err != nil {
		return fmt.Errorf("failed to pick generation: %w", err)
	}
	genDir := filepath.Join(s.dir, gen)
	if err := os.Mkdir(genDir, 0755); err != nil {
		return fmt.Errorf("failed to create generation: %w", err)
	}

	metaBytes, err := marshalMetadata(s.metadata)
	if err != nil {
		return err
	}
	artifacts := []struct {
		name string
		data []byte
	}{
		{VectorsFile, marshalVectors(s.metric, s.dim, s.vectors)},
		{MetadataFile, metaBytes},
		{FlatIndexFile, marshalFlat(s.flat)},
	}
	for _, a := range artifacts {
		if err := writeFileAtomic(filepath.Join(genDir, a.name), a.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", a.name, err)
		}
	}
	if err := syncDir(genDir); err != nil {
		return fmt.Errorf("failed to sync generation: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(s.dir, CurrentFile), []byte(gen+"\n")); err != nil {
		return fmt.Errorf("failed to swap %s: %w", CurrentFile, err)
	}
	if err := syncDir(s.dir); err != nil {
		return fmt.Errorf("failed to sync index directory: %w", err)
	}

	s.generation = gen
	s.committed = len(s.metadata)
	s.dirty = false
	s.logger.Info("persisted index", "generation", gen, "size", len(s.metadata))

	s.prune()
	return nil
}

// prune removes generations older than the newest s.keep. Failures are
// logged; the committed generation is never touched.
func (s *Store) prune() {
	names, err := listGenerations(s.dir)
	if err != nil {
		s.logger.Warn("failed to list generations", "err", err)
		return
	}
	if len(names) <= s.keep {
		return
	}
	for _, name := range names[:len(names)-s.keep] {
		if name == s.generation {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warn("failed to prune generation", "generation", name, "err", err)
			continue
		}
		s.logger.Debug("pruned generation", "generation", name)
	}
}

// Search returns the k nearest entries to vec, best first. Fewer than k
// hits come back when the store is smaller than k. Entries appended since
// the last Persist are included.
func (s *Store) Search(vec []float32, k int) ([]core.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search(vec, k, len(s.metadata))
}

// SearchCommitted is Search limited to the entries of the committed
// generation. Readers sharing the store with a writer use it so they never
// observe appends that have not been persisted.
func (s *Store) SearchCommitted(vec []float32, k int) ([]core.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.search(vec, k, s.committed)
}

// search ranks the first rows entries. Callers hold the read lock.
func (s *Store) search(vec []float32, k, rows int) ([]core.Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", core.ErrValidation, k)
	}
	if s.flat == nil || rows == 0 {
		return []core.Hit{}, nil
	}
	if len(vec) != s.dim {
		return nil, fmt.Errorf("%w: query has %d, store has %d", core.ErrDimensionMismatch, len(vec), s.dim)
	}

	query := vec
	if s.metric.Normalized() {
		query = ai.Normalize(vec)
	}
	neighbors, err := s.flat.searchRows(query, k, rows)
	if err != nil {
		return nil, err
	}

	hits := make([]core.Hit, len(neighbors))
	for i, n := range neighbors {
		m := s.metadata[n.Row]
		hits[i] = core.Hit{
			Rank:     i + 1,
			Score:    n.Score,
			DocID:    m.DocID,
			ChunkID:  m.ChunkID,
			FilePath: m.FilePath,
			Summary:  m.Summary,
		}
	}
	return hits, nil
}

// Metadata returns a copy of the record for entry i.
func (s *Store) Metadata(i int) (core.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i < 0 || i >= len(s.metadata) {
		return core.Metadata{}, fmt.Errorf("%w: %d of %d", ErrRowOutOfRange, i, len(s.metadata))
	}
	m := s.metadata[i]
	m.Sentences = slices.Clone(m.Sentences)
	return m, nil
}

// Contains reports whether an entry with the given content hash is stored.
func (s *Store) Contains(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.hashes[hash]
	return ok
}

// Size returns the number of entries.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metadata)
}

// CommittedSize returns the number of entries in the committed generation.
func (s *Store) CommittedSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committed
}

// Dimension returns the vector length, or 0 before the first append.
func (s *Store) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Metric returns the similarity function the store ranks by.
func (s *Store) Metric() core.Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metric
}

// Exists reports whether the store was loaded from or persisted to disk.
func (s *Store) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation != ""
}

// Generation returns the name of the generation the store last loaded or
// committed, or "" if none.
func (s *Store) Generation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Dir returns the directory the store persists into.
func (s *Store) Dir() string {
	return s.dir
}
