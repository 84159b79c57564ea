package reindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/semindex/ai/mock"
	"github.com/poiesic/semindex/chunker"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/index"
	"github.com/poiesic/semindex/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func records(docs ...core.Document) []*storage.DocumentRecord {
	out := make([]*storage.DocumentRecord, len(docs))
	for i, d := range docs {
		out[i] = &storage.DocumentRecord{Document: d}
	}
	return out
}

func TestBatchProcessor_Process(t *testing.T) {
	store, err := index.New(t.TempDir())
	require.NoError(t, err)
	c, err := chunker.New()
	require.NoError(t, err)

	embedder := mock.NewMockEmbedderWithDimension(8)
	bp := NewBatchProcessor(embedder, c, 1, time.Millisecond, nil)

	batch := records(
		core.Document{DocID: "a", Chunks: []core.Chunk{{ChunkID: 1, Sentences: []string{"alpha"}}, {ChunkID: 2, Sentences: []string{"beta"}}}},
		core.Document{DocID: "b", Sentences: []string{"gamma one.", "gamma two."}},
		core.Document{DocID: "c", Chunks: []core.Chunk{{ChunkID: 1, Sentences: []string{"  "}}}},
	)

	result, err := bp.Process(context.Background(), store, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Documents)
	assert.Equal(t, 3, result.Chunks)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, core.IndexSummary{Added: 3}, result.Summary)
	assert.Equal(t, 1, embedder.CallCount(), "one provider call per batch")
	assert.Equal(t, 3, store.Size())
	assert.Empty(t, batch[1].Document.Chunks, "ledger record is not modified")
}

func TestBatchProcessor_RetriesThenFails(t *testing.T) {
	store, err := index.New(t.TempDir())
	require.NoError(t, err)

	embedder := mock.NewMockEmbedderWithDimension(8)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("unavailable")
	}
	bp := NewBatchProcessor(embedder, nil, 3, time.Millisecond, nil)

	_, err = bp.Process(context.Background(), store, records(
		core.Document{DocID: "a", Chunks: []core.Chunk{{ChunkID: 1, Sentences: []string{"alpha"}}}},
	))
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Equal(t, 3, embedder.CallCount())
	assert.Zero(t, store.Size())
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	store, err := index.New(t.TempDir())
	require.NoError(t, err)

	embedder := mock.NewMockEmbedderWithDimension(8)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{mock.GenerateVector("x", 8)}, nil
	}
	bp := NewBatchProcessor(embedder, nil, 1, time.Millisecond, nil)

	_, err = bp.Process(context.Background(), store, records(
		core.Document{DocID: "a", Chunks: []core.Chunk{{ChunkID: 1, Sentences: []string{"alpha"}}, {ChunkID: 2, Sentences: []string{"beta"}}}},
	))
	assert.ErrorIs(t, err, core.ErrProvider)
	assert.Zero(t, store.Size())
}

func TestBatchProcessor_Empty(t *testing.T) {
	store, err := index.New(t.TempDir())
	require.NoError(t, err)
	embedder := mock.NewMockEmbedder()

	result, err := NewBatchProcessor(embedder, nil, 1, time.Millisecond, nil).Process(context.Background(), store, nil)
	require.NoError(t, err)
	assert.Zero(t, result.Documents)
	assert.Zero(t, embedder.CallCount())
}
