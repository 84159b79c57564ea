package search

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/semindex/ai/mock"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 16

var corpus = []string{
	"the cat sat on the mat",
	"stock markets fell sharply today",
	"a recipe for sourdough bread",
	"rain is expected over the weekend",
	"the quarterly report shows growth",
}

func buildStore(t *testing.T, dir string, texts ...string) *index.Store {
	t.Helper()
	store, err := index.Open(dir)
	require.NoError(t, err)

	items := make([]core.Item, len(texts))
	for i, text := range texts {
		items[i] = core.Item{
			Text: text,
			Metadata: core.Metadata{
				DocID:       fmt.Sprintf("doc-%d", i),
				ChunkID:     1,
				FilePath:    fmt.Sprintf("doc-%d.json", i),
				ContentHash: core.ContentHash(text),
				Summary:     text,
				Sentences:   []string{text},
			},
			Vector: mock.GenerateVector(text, testDim),
		}
	}
	_, err = store.Append(items)
	require.NoError(t, err)
	require.NoError(t, store.Persist())
	return store
}

type recordingMonitor struct {
	stages []string
	cached bool
	hits   []core.Hit
}

func (r *recordingMonitor) Start(string) { r.stages = append(r.stages, "start") }
func (r *recordingMonitor) AfterStoreLoad(string, int) {
	r.stages = append(r.stages, "load")
}
func (r *recordingMonitor) AfterEmbedding(_ []float32, cached bool) {
	r.stages = append(r.stages, "embed")
	r.cached = cached
}
func (r *recordingMonitor) Finish(hits []core.Hit) {
	r.stages = append(r.stages, "finish")
	r.hits = hits
}

func TestNewSearcher(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(testDim)
	dir := t.TempDir()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(dir, embedder)
		require.NoError(t, err)
		defer searcher.Close()
		assert.Equal(t, DefaultK, searcher.defaultK)
		assert.NotNil(t, searcher.cache)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(dir, embedder, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher.logger)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewSearcher(dir, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})

	t.Run("no directory", func(t *testing.T) {
		_, err := NewSearcher("", embedder)
		assert.Equal(t, ErrDirRequired, err)
	})

	t.Run("nil store", func(t *testing.T) {
		_, err := NewSearcher("", embedder, WithStore(nil))
		assert.Equal(t, ErrStoreRequired, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewSearcher(dir, embedder, WithDefaultK(0))
		assert.ErrorIs(t, err, core.ErrValidation)

		_, err = NewSearcher(dir, embedder, WithCacheSize(-1))
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("cache disabled", func(t *testing.T) {
		searcher, err := NewSearcher(dir, embedder, WithCacheSize(0))
		require.NoError(t, err)
		assert.Nil(t, searcher.cache)
		assert.NoError(t, searcher.Close())
	})
}

func TestSearch_NotFound(t *testing.T) {
	embedder := mock.NewMockEmbedderWithDimension(testDim)
	ctx := context.Background()

	t.Run("no store", func(t *testing.T) {
		searcher, err := NewSearcher(filepath.Join(t.TempDir(), "missing"), embedder)
		require.NoError(t, err)
		_, err = searcher.Search(ctx, "anything", 3)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("empty query without a store", func(t *testing.T) {
		searcher, err := NewSearcher(t.TempDir(), embedder)
		require.NoError(t, err)
		_, err = searcher.Search(ctx, "", 3)
		assert.ErrorIs(t, err, core.ErrNotFound)
		assert.NotErrorIs(t, err, core.ErrValidation)
	})

	t.Run("incomplete generation", func(t *testing.T) {
		dir := t.TempDir()
		store := buildStore(t, dir, corpus...)
		require.NoError(t, os.Remove(filepath.Join(dir, store.Generation(), index.FlatIndexFile)))

		searcher, err := NewSearcher(dir, embedder)
		require.NoError(t, err)
		_, err = searcher.Search(ctx, "anything", 3)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestSearch(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, corpus...)

	embedder := mock.NewMockEmbedderWithDimension(testDim)
	searcher, err := NewSearcher(dir, embedder)
	require.NoError(t, err)
	defer searcher.Close()
	ctx := context.Background()

	t.Run("exact text ranks first", func(t *testing.T) {
		hits, err := searcher.Search(ctx, corpus[2], 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, 1, hits[0].Rank)
		assert.Equal(t, "doc-2", hits[0].DocID)
		assert.Equal(t, "doc-2.json", hits[0].FilePath)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
		assert.Equal(t, 2, hits[1].Rank)
		assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	})

	t.Run("default k", func(t *testing.T) {
		hits, err := searcher.Search(ctx, "weather", 0)
		require.NoError(t, err)
		assert.Len(t, hits, DefaultK)
	})

	t.Run("k larger than store", func(t *testing.T) {
		hits, err := searcher.Search(ctx, "weather", 50)
		require.NoError(t, err)
		assert.Len(t, hits, len(corpus))
	})

	t.Run("empty query", func(t *testing.T) {
		_, err := searcher.Search(ctx, "   ", 3)
		assert.ErrorIs(t, err, core.ErrEmptyQuery)
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestSearch_ReloadsNewGeneration(t *testing.T) {
	dir := t.TempDir()
	writer := buildStore(t, dir, corpus[:2]...)

	searcher, err := NewSearcher(dir, mock.NewMockEmbedderWithDimension(testDim))
	require.NoError(t, err)
	ctx := context.Background()

	hits, err := searcher.Search(ctx, "query", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	_, err = writer.Append([]core.Item{{
		Text: "fresh",
		Metadata: core.Metadata{
			DocID:       "doc-new",
			ChunkID:     1,
			ContentHash: core.ContentHash("fresh"),
		},
		Vector: mock.GenerateVector("fresh", testDim),
	}})
	require.NoError(t, err)

	hits, err = searcher.Search(ctx, "query", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "uncommitted appends are invisible")

	require.NoError(t, writer.Persist())
	hits, err = searcher.Search(ctx, "fresh", 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "doc-new", hits[0].DocID)
}

func TestSearch_QueryCache(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, corpus...)

	embedder := mock.NewMockEmbedderWithDimension(testDim)
	searcher, err := NewSearcher(dir, embedder)
	require.NoError(t, err)
	defer searcher.Close()
	ctx := context.Background()

	first, err := searcher.Search(ctx, "bread", 3)
	require.NoError(t, err)
	searcher.cache.Wait()

	monitor := &recordingMonitor{}
	second, err := searcher.SearchWithMonitor(ctx, "  bread ", 3, monitor)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, embedder.CallCount())
	assert.True(t, monitor.cached)
}

func TestSearch_ProviderFailure(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, corpus...)

	embedder := mock.NewMockEmbedderWithDimension(testDim)
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("connection refused")
	}
	searcher, err := NewSearcher(dir, embedder, WithCacheSize(0))
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "bread", 3)
	assert.ErrorIs(t, err, core.ErrProvider)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	dir := t.TempDir()
	buildStore(t, dir, corpus...)

	searcher, err := NewSearcher(dir, mock.NewMockEmbedderWithDimension(testDim*2))
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "bread", 3)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
}

func TestSearch_SharedStore(t *testing.T) {
	store, err := index.Open(t.TempDir())
	require.NoError(t, err)

	searcher, err := NewSearcher("", mock.NewMockEmbedderWithDimension(testDim), WithStore(store))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = searcher.Search(ctx, "bread", 3)
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = store.Append([]core.Item{{
		Text:     corpus[2],
		Metadata: core.Metadata{DocID: "d", ChunkID: 1, ContentHash: core.ContentHash(corpus[2])},
		Vector:   mock.GenerateVector(corpus[2], testDim),
	}})
	require.NoError(t, err)
	require.NoError(t, store.Persist())

	monitor := &recordingMonitor{}
	hits, err := searcher.SearchWithMonitor(ctx, corpus[2], 3, monitor)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, []string{"start", "load", "embed", "finish"}, monitor.stages)
	assert.Equal(t, hits, monitor.hits)
}

func TestSearch_SharedStoreSeesCommittedRowsOnly(t *testing.T) {
	dir := t.TempDir()
	store := buildStore(t, dir, corpus[:2]...)

	searcher, err := NewSearcher("", mock.NewMockEmbedderWithDimension(testDim), WithStore(store))
	require.NoError(t, err)
	ctx := context.Background()

	pending := corpus[2]
	_, err = store.Append([]core.Item{{
		Text:     pending,
		Metadata: core.Metadata{DocID: "pending", ChunkID: 1, ContentHash: core.ContentHash(pending)},
		Vector:   mock.GenerateVector(pending, testDim),
	}})
	require.NoError(t, err)
	require.Equal(t, 3, store.Size())
	assert.Equal(t, 2, store.CommittedSize())

	hits, err := searcher.Search(ctx, pending, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2, "appended rows stay invisible before persist")
	for _, hit := range hits {
		assert.NotEqual(t, "pending", hit.DocID)
	}

	// A plain file where the next generation directory goes makes Persist fail.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gen-000002"), []byte("x"), 0644))
	require.Error(t, store.Persist())

	hits, err = searcher.Search(ctx, pending, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 2, "a failed persist does not publish the appended rows")

	require.NoError(t, os.Remove(filepath.Join(dir, "gen-000002")))
	require.NoError(t, store.Persist())

	hits, err = searcher.Search(ctx, pending, 10)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "pending", hits[0].DocID)
}
