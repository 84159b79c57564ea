package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/poiesic/semindex/core"
)

// SearchResponse is the response body for GET /search.
type SearchResponse struct {
	Query   string     `json:"query"`
	Results []core.Hit `json:"results"`
}

// IndexResponse is the response body for POST /documents.
type IndexResponse struct {
	Summary core.IndexSummary `json:"summary"`
	Error   string            `json:"error,omitempty"`
}

// StatsResponse is the response body for GET /stats.
type StatsResponse struct {
	Size       int         `json:"size"`
	Dimension  int         `json:"dimension"`
	Metric     core.Metric `json:"metric,omitempty"`
	Generation string      `json:"generation,omitempty"`
	Documents  *int        `json:"documents,omitempty"`
}

// HealthResponse is the response body for GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")

	k := 0
	if raw := c.QueryParam("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be a positive integer")
		}
		k = parsed
	}

	hits, err := s.searcher.Search(c.Request().Context(), query, k)
	if err != nil {
		s.logger.Warn("search failed", "query", query, "err", err)
		return httpError(err)
	}

	return c.JSON(http.StatusOK, SearchResponse{Query: query, Results: hits})
}

func (s *Server) handleDocuments(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	docs, err := core.DecodeDocuments(body)
	if err != nil {
		s.logger.Warn("invalid document request", "err", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(docs) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "no documents")
	}

	summary, err := s.indexer.Index(c.Request().Context(), docs...)
	if err != nil {
		s.logger.Warn("indexing reported errors", "failed", summary.Failed, "err", err)
		status := http.StatusOK
		if summary.Added == 0 && summary.SkippedDuplicate == 0 {
			status = statusFor(err)
		}
		return c.JSON(status, IndexResponse{Summary: summary, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, IndexResponse{Summary: summary})
}

func (s *Server) handleStats(c echo.Context) error {
	var resp StatsResponse
	if s.store != nil {
		resp.Size = s.store.Size()
		resp.Dimension = s.store.Dimension()
		resp.Metric = s.store.Metric()
		resp.Generation = s.store.Generation()
	}
	if s.ledger != nil {
		count, err := s.ledger.CountDocuments(c.Request().Context())
		if err != nil {
			s.logger.Error("error counting documents", "err", err)
			return echo.NewHTTPError(http.StatusInternalServerError, "failed to count documents")
		}
		resp.Documents = &count
	}
	return c.JSON(http.StatusOK, resp)
}
