package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/poiesic/semindex/ai/mock"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/index"
	"github.com/poiesic/semindex/ingestion"
	"github.com/poiesic/semindex/metrics"
	"github.com/poiesic/semindex/search"
	"github.com/poiesic/semindex/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSearcher struct {
	hits  []core.Hit
	err   error
	query string
	k     int
}

func (s *stubSearcher) Search(ctx context.Context, query string, k int) ([]core.Hit, error) {
	s.query = query
	s.k = k
	return s.hits, s.err
}

type stubIndexer struct {
	summary core.IndexSummary
	err     error
	docs    []*core.Document
}

func (s *stubIndexer) Index(ctx context.Context, docs ...*core.Document) (core.IndexSummary, error) {
	s.docs = append(s.docs, docs...)
	return s.summary, s.err
}

func serve(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNew(t *testing.T) {
	_, err := New(nil, Config{})
	assert.Equal(t, ErrSearcherRequired, err)

	s, err := New(&stubSearcher{}, Config{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8420", s.config.Addr)
	assert.Equal(t, 10*time.Second, s.config.ShutdownTimeout)
}

func TestHandleHealth(t *testing.T) {
	s, err := New(&stubSearcher{}, Config{})
	require.NoError(t, err)

	rec := serve(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandleSearch(t *testing.T) {
	t.Run("returns query and results", func(t *testing.T) {
		searcher := &stubSearcher{hits: []core.Hit{{Rank: 1, Score: 0.9, DocID: "a", ChunkID: 1}}}
		s, err := New(searcher, Config{})
		require.NoError(t, err)

		rec := serve(t, s, http.MethodGet, "/search?q=quarterly+revenue&k=5", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "quarterly revenue", searcher.query)
		assert.Equal(t, 5, searcher.k)

		var resp SearchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "quarterly revenue", resp.Query)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, "a", resp.Results[0].DocID)
	})

	t.Run("k defaults when absent", func(t *testing.T) {
		searcher := &stubSearcher{}
		s, err := New(searcher, Config{})
		require.NoError(t, err)

		rec := serve(t, s, http.MethodGet, "/search?q=x", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 0, searcher.k)
	})

	t.Run("rejects bad k", func(t *testing.T) {
		s, err := New(&stubSearcher{}, Config{})
		require.NoError(t, err)

		for _, k := range []string{"zero", "0", "-2"} {
			rec := serve(t, s, http.MethodGet, "/search?q=x&k="+k, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code, "k=%s", k)
		}
	})

	t.Run("maps error classes", func(t *testing.T) {
		cases := []struct {
			err  error
			code int
		}{
			{core.ErrEmptyQuery, http.StatusBadRequest},
			{core.ErrNotFound, http.StatusNotFound},
			{core.ErrDimensionMismatch, http.StatusBadGateway},
			{core.ErrCorruptStore, http.StatusInternalServerError},
			{errors.New("boom"), http.StatusInternalServerError},
		}
		for _, tc := range cases {
			s, err := New(&stubSearcher{err: tc.err}, Config{})
			require.NoError(t, err)
			rec := serve(t, s, http.MethodGet, "/search?q=x", "")
			assert.Equal(t, tc.code, rec.Code, tc.err.Error())
		}
	})
}

func TestHandleDocuments(t *testing.T) {
	t.Run("not routed without indexer", func(t *testing.T) {
		s, err := New(&stubSearcher{}, Config{})
		require.NoError(t, err)
		rec := serve(t, s, http.MethodPost, "/documents", `{"doc_id":"a"}`)
		assert.NotEqual(t, http.StatusOK, rec.Code)
	})

	t.Run("single document", func(t *testing.T) {
		indexer := &stubIndexer{summary: core.IndexSummary{Added: 1}}
		s, err := New(&stubSearcher{}, Config{}, WithIndexer(indexer))
		require.NoError(t, err)

		rec := serve(t, s, http.MethodPost, "/documents", `{"doc_id":"a","sentences":["Hello there."]}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, indexer.docs, 1)
		assert.Equal(t, "a", indexer.docs[0].DocID)

		var resp IndexResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Summary.Added)
		assert.Empty(t, resp.Error)
	})

	t.Run("array of documents", func(t *testing.T) {
		indexer := &stubIndexer{summary: core.IndexSummary{Added: 2}}
		s, err := New(&stubSearcher{}, Config{}, WithIndexer(indexer))
		require.NoError(t, err)

		rec := serve(t, s, http.MethodPost, "/documents", `[{"doc_id":"a"},{"doc_id":"b"}]`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, indexer.docs, 2)
	})

	t.Run("malformed body", func(t *testing.T) {
		s, err := New(&stubSearcher{}, Config{}, WithIndexer(&stubIndexer{}))
		require.NoError(t, err)

		assert.Equal(t, http.StatusBadRequest, serve(t, s, http.MethodPost, "/documents", `{"doc_id":`).Code)
		assert.Equal(t, http.StatusBadRequest, serve(t, s, http.MethodPost, "/documents", `[]`).Code)
	})

	t.Run("partial failure keeps 200", func(t *testing.T) {
		indexer := &stubIndexer{
			summary: core.IndexSummary{Added: 1, Failed: 1},
			err:     fmt.Errorf("document %q: %w", "b", core.ErrInvalidDocument),
		}
		s, err := New(&stubSearcher{}, Config{}, WithIndexer(indexer))
		require.NoError(t, err)

		rec := serve(t, s, http.MethodPost, "/documents", `[{"doc_id":"a"},{"doc_id":"b"}]`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp IndexResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Summary.Failed)
		assert.Contains(t, resp.Error, "invalid document")
	})

	t.Run("total failure maps status", func(t *testing.T) {
		indexer := &stubIndexer{
			summary: core.IndexSummary{Failed: 1},
			err:     fmt.Errorf("%w: service down", core.ErrProvider),
		}
		s, err := New(&stubSearcher{}, Config{}, WithIndexer(indexer))
		require.NoError(t, err)

		rec := serve(t, s, http.MethodPost, "/documents", `{"doc_id":"a"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()
	store, err := index.Open(dir)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedderWithDimension(16)
	pipeline, err := ingestion.NewPipeline(store, mock.NewMockProviderWithEmbedder(embedder))
	require.NoError(t, err)
	defer pipeline.Release()

	m := metrics.New()
	searcher, err := search.NewSearcher(dir, embedder, search.WithStore(store), search.WithMetrics(m))
	require.NoError(t, err)
	defer searcher.Close()

	docs, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	s, err := New(searcher, Config{},
		WithIndexer(pipeline),
		WithStoreInfo(store),
		WithDocumentCounter(docs),
		WithMetrics(m))
	require.NoError(t, err)

	rec := serve(t, s, http.MethodGet, "/search?q=anything", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no store yet")

	rec = serve(t, s, http.MethodPost, "/documents",
		`{"doc_id":"report","file_path":"/data/report.txt","sentences":["Revenue grew in the third quarter."]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, s, http.MethodGet, "/search?q=Revenue+grew+in+the+third+quarter.&k=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "report", resp.Results[0].DocID)
	assert.Equal(t, 1, resp.Results[0].Rank)

	rec = serve(t, s, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, 16, stats.Dimension)
	assert.Equal(t, core.MetricInnerProduct, stats.Metric)
	assert.Equal(t, "gen-000001", stats.Generation)
	require.NotNil(t, stats.Documents)
	assert.Equal(t, 0, *stats.Documents, "pipeline runs without a ledger here")

	rec = serve(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "semindex_search_queries_total")
}

func TestRun(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	s, err := New(&stubSearcher{}, Config{Addr: addr, ShutdownTimeout: time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
