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


// Package server exposes the index over HTTP.
//
// Routes:
//
//	GET  /search?q=&k=  ranked hits for a query
//	POST /documents     index one document or a JSON array of documents
//	GET  /stats         store and ledger counts
//	GET  /healthz       liveness
//	GET  /metrics       prometheus exposition
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/metrics"
	"golang.org/x/sync/errgroup"
)

// Searcher answers queries.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]core.Hit, error)
}

// Indexer indexes documents synchronously.
type Indexer interface {
	Index(ctx context.Context, docs ...*core.Document) (core.IndexSummary, error)
}

// StoreInfo describes the store being served.
type StoreInfo interface {
	Size() int
	Dimension() int
	Metric() core.Metric
	Generation() string
}

// DocumentCounter counts ledger documents.
type DocumentCounter interface {
	CountDocuments(ctx context.Context) (int, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
	MaxBodyBytes    string // echo body limit, e.g. "8M"
}

// Server provides HTTP endpoints for semindex.
type Server struct {
	echo     *echo.Echo
	searcher Searcher
	indexer  Indexer
	store    StoreInfo
	ledger   DocumentCounter
	metrics  *metrics.Metrics
	config   Config
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithIndexer enables POST /documents.
func WithIndexer(indexer Indexer) Option {
	return func(s *Server) error {
		s.indexer = indexer
		return nil
	}
}

// WithStoreInfo enables the store section of GET /stats.
func WithStoreInfo(store StoreInfo) Option {
	return func(s *Server) error {
		s.store = store
		return nil
	}
}

// WithDocumentCounter adds the ledger document count to GET /stats.
func WithDocumentCounter(ledger DocumentCounter) Option {
	return func(s *Server) error {
		s.ledger = ledger
		return nil
	}
}

// WithMetrics serves m on GET /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) error {
		s.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a new HTTP server.
func New(searcher Searcher, cfg Config, opts ...Option) (*Server, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8420"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.MaxBodyBytes == "" {
		cfg.MaxBodyBytes = "8M"
	}

	s := &Server{
		searcher: searcher,
		config:   cfg,
		logger:   slog.Default().With("component", "server"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	e.Use(s.requestLogger)

	s.echo = e
	s.registerRoutes()

	return s, nil
}

func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			// Let echo write the response so the logged status is final.
			c.Error(err)
		}

		s.logger.Info("http request",
			"method", c.Request().Method,
			"uri", c.Request().RequestURI,
			"status", c.Response().Status,
			"duration", time.Since(start),
			"requestID", c.Response().Header().Get(echo.HeaderXRequestID))
		return nil
	}
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/search", s.handleSearch)
	s.echo.GET("/stats", s.handleStats)
	if s.indexer != nil {
		s.echo.POST("/documents", s.handleDocuments)
	}
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("starting http server", "addr", s.config.Addr)
		if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
