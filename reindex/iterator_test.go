package reindex

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/storage"
	"github.com/poiesic/semindex/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T) (storage.DocumentRepository, storage.CheckpointRepository) {
	t.Helper()
	docs, checkpoints, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return docs, checkpoints
}

func seedLedger(t *testing.T, docs storage.DocumentRepository, n int) {
	t.Helper()
	for i := range n {
		_, err := docs.PutDocuments(context.Background(), &core.Document{
			DocID:      fmt.Sprintf("doc-%03d", i),
			DocSummary: fmt.Sprintf("Summary %d.", i),
			Chunks: []core.Chunk{
				{ChunkID: 1, Sentences: []string{fmt.Sprintf("First sentence of %d.", i)}},
				{ChunkID: 2, Sentences: []string{fmt.Sprintf("Second sentence of %d.", i)}},
			},
		})
		require.NoError(t, err)
	}
}

func TestDocumentIterator_Basic(t *testing.T) {
	docs, _ := setupLedger(t)
	seedLedger(t, docs, 5)

	iter := NewDocumentIterator(docs, 2)
	var sizes []int
	var ids []string
	err := iter.ForEach(context.Background(), func(batch []*storage.DocumentRecord) error {
		sizes = append(sizes, len(batch))
		for _, r := range batch {
			ids = append(ids, r.Document.DocID)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2, 1}, sizes)
	assert.Equal(t, []string{"doc-000", "doc-001", "doc-002", "doc-003", "doc-004"}, ids)
}

func TestDocumentIterator_ExactMultiple(t *testing.T) {
	docs, _ := setupLedger(t)
	seedLedger(t, docs, 4)

	calls := 0
	err := NewDocumentIterator(docs, 2).ForEach(context.Background(), func(batch []*storage.DocumentRecord) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDocumentIterator_Empty(t *testing.T) {
	docs, _ := setupLedger(t)

	called := false
	err := NewDocumentIterator(docs, 10).ForEach(context.Background(), func([]*storage.DocumentRecord) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestDocumentIterator_StopsOnError(t *testing.T) {
	docs, _ := setupLedger(t)
	seedLedger(t, docs, 6)

	boom := errors.New("boom")
	calls := 0
	err := NewDocumentIterator(docs, 2).ForEach(context.Background(), func([]*storage.DocumentRecord) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestDocumentIterator_Cancelled(t *testing.T) {
	docs, _ := setupLedger(t)
	seedLedger(t, docs, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewDocumentIterator(docs, 1).ForEach(ctx, func([]*storage.DocumentRecord) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDocumentIterator_DefaultBatchSize(t *testing.T) {
	docs, _ := setupLedger(t)
	assert.Equal(t, DefaultBatchSize, NewDocumentIterator(docs, 0).batchSize)
}
