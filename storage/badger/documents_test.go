package badger

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDocs(t *testing.T) storage.DocumentRepository {
	t.Helper()
	docs, _, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return docs
}

func doc(id string, chunks ...string) *core.Document {
	d := &core.Document{DocID: id, FilePath: "/in/" + id, DocSummary: "summary of " + id}
	for i, s := range chunks {
		d.Chunks = append(d.Chunks, core.Chunk{ChunkID: i + 1, Sentences: []string{s}})
	}
	return d
}

func TestPutAndGetDocument(t *testing.T) {
	docs := newDocs(t)
	ctx := context.Background()

	stored, err := docs.PutDocuments(ctx, doc("a", "one", "two"))
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.False(t, stored[0].InsertedAt.IsZero())
	assert.Equal(t, stored[0].InsertedAt, stored[0].UpdatedAt)

	got, err := docs.GetDocument(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Document.DocID)
	assert.Equal(t, "summary of a", got.Document.DocSummary)
	require.Len(t, got.Document.Chunks, 2)
	assert.Equal(t, []string{"two"}, got.Document.Chunks[1].Sentences)
}

func TestPutDocuments_Merges(t *testing.T) {
	docs := newDocs(t)
	ctx := context.Background()

	first, err := docs.PutDocuments(ctx, doc("a", "one", "two"))
	require.NoError(t, err)

	update := &core.Document{
		DocID:  "a",
		Chunks: []core.Chunk{{ChunkID: 2, Sentences: []string{"two, revised"}}, {ChunkID: 3, Sentences: []string{"three"}}},
	}
	_, err = docs.PutDocuments(ctx, update)
	require.NoError(t, err)

	got, err := docs.GetDocument(ctx, "a")
	require.NoError(t, err)
	require.Len(t, got.Document.Chunks, 3)
	assert.Equal(t, []string{"one"}, got.Document.Chunks[0].Sentences)
	assert.Equal(t, []string{"two, revised"}, got.Document.Chunks[1].Sentences)
	assert.Equal(t, []string{"three"}, got.Document.Chunks[2].Sentences)
	assert.Equal(t, "summary of a", got.Document.DocSummary)
	assert.True(t, got.InsertedAt.Equal(first[0].InsertedAt))
	assert.False(t, got.UpdatedAt.Before(got.InsertedAt))
}

func TestPutDocuments_Invalid(t *testing.T) {
	docs := newDocs(t)
	ctx := context.Background()

	_, err := docs.PutDocuments(ctx, doc("ok"), &core.Document{})
	assert.ErrorIs(t, err, storage.ErrInvalidRecord)

	_, err = docs.PutDocuments(ctx, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidRecord)

	count, err := docs.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "nothing stored when any record is invalid")
}

func TestGetDocument_NotFound(t *testing.T) {
	docs := newDocs(t)
	_, err := docs.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetDocuments_SkipsMissing(t *testing.T) {
	docs := newDocs(t)
	ctx := context.Background()
	_, err := docs.PutDocuments(ctx, doc("a"), doc("c"))
	require.NoError(t, err)

	got, err := docs.GetDocuments(ctx, "a", "b", "c")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Document.DocID)
	assert.Equal(t, "c", got[1].Document.DocID)
}

func TestListDocuments(t *testing.T) {
	docs := newDocs(t)
	ctx := context.Background()

	for _, id := range []string{"d", "b", "a", "e", "c"} {
		_, err := docs.PutDocuments(ctx, doc(id, "text "+id))
		require.NoError(t, err)
	}

	var seen []string
	after := ""
	for {
		page, err := docs.ListDocuments(ctx, after, 2)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		assert.LessOrEqual(t, len(page), 2)
		for _, r := range page {
			seen = append(seen, r.Document.DocID)
		}
		after = page[len(page)-1].Document.DocID
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, seen)

	_, err := docs.ListDocuments(ctx, "", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidRecord)
}

func TestListDocuments_IgnoresCheckpoints(t *testing.T) {
	docs, checkpoints, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	require.NoError(t, checkpoints.SaveCheckpoint(ctx, &storage.Checkpoint{Name: "x"}))
	_, err = docs.PutDocuments(ctx, doc("a"))
	require.NoError(t, err)

	page, err := docs.ListDocuments(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, page, 1)
}

func TestCountAndDeleteDocuments(t *testing.T) {
	docs := newDocs(t)
	ctx := context.Background()

	for i := range 5 {
		_, err := docs.PutDocuments(ctx, doc(fmt.Sprintf("doc-%d", i)))
		require.NoError(t, err)
	}
	count, err := docs.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	require.NoError(t, docs.DeleteDocuments(ctx, "doc-1", "doc-3"))
	count, err = docs.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	err = docs.DeleteDocuments(ctx, "doc-0", "doc-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = docs.GetDocument(ctx, "doc-0")
	assert.NoError(t, err, "failed delete rolls back")
}

func TestDocuments_SurviveReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ledger")
	ctx := context.Background()

	backend, err := OpenBackend(dir, false)
	require.NoError(t, err)
	docs, err := NewDocumentRepository(backend)
	require.NoError(t, err)
	_, err = docs.PutDocuments(ctx, doc("persisted", "kept"))
	require.NoError(t, err)
	require.NoError(t, backend.Close())

	backend, err = OpenBackend(dir, false)
	require.NoError(t, err)
	defer backend.Close()
	docs, err = NewDocumentRepository(backend)
	require.NoError(t, err)

	got, err := docs.GetDocument(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, []string{"kept"}, got.Document.Chunks[0].Sentences)
}

func TestCheckpoints(t *testing.T) {
	_, checkpoints, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	missing, err := checkpoints.LoadCheckpoint(ctx, "/data/index")
	require.NoError(t, err)
	assert.Nil(t, missing)

	cp := &storage.Checkpoint{
		Name:       "/data/index",
		Generation: "gen-000003",
		Size:       42,
		Dimension:  768,
		Metric:     core.MetricInnerProduct,
		Model:      "embeddinggemma",
	}
	require.NoError(t, checkpoints.SaveCheckpoint(ctx, cp))
	assert.False(t, cp.UpdatedAt.IsZero())

	got, err := checkpoints.LoadCheckpoint(ctx, "/data/index")
	require.NoError(t, err)
	assert.Equal(t, cp, got)
}
