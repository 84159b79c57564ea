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


package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/semindex"
	"github.com/poiesic/semindex/config"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/metrics"
	"github.com/poiesic/semindex/reindex"
	"github.com/poiesic/semindex/server"
	"github.com/poiesic/semindex/watch"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

// configKey is the App.Metadata key holding the loaded configuration.
const configKey = "config"

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "semindex",
		Usage:  "Chunk, embed and search document records",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"SEMINDEX_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Log level (debug, info, warn, error); overrides the configuration",
			},
			&cli.StringFlag{
				Name:    "dir",
				Aliases: []string{"d"},
				Usage:   "Index directory; overrides the configuration",
			},
			&cli.StringFlag{
				Name:  "embedding-host",
				Usage: "Embedding service host URL; overrides the configuration",
			},
			&cli.StringFlag{
				Name:  "embedding-model",
				Usage: "Embedding model name; overrides the configuration",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "index",
				Usage:     "Index JSON document records from files or directories",
				ArgsUsage: "PATH...",
				Action:    indexCommand,
			},
			{
				Name:      "search",
				Usage:     "Return the chunks most similar to a query",
				ArgsUsage: "QUERY...",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of hits to return; 0 uses the configured default",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print hits as JSON",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print index and ledger statistics",
				Action: statsCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the index from the document ledger with the configured embedding model",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed batches",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve search and indexing over HTTP",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address; overrides the configuration",
					},
					&cli.StringFlag{
						Name:  "watch",
						Usage: "Also index JSON records dropped into this directory",
					},
				},
			},
			{
				Name:      "watch",
				Usage:     "Index JSON records dropped into a directory",
				ArgsUsage: "[DIR]",
				Action:    watchCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "move",
						Usage: "Move processed records into done/ and failed/",
					},
				},
			},
		},
	}
}

// setup loads the environment and configuration and installs the logger.
func setup(c *cli.Context) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if v := c.String("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := c.String("dir"); v != "" {
		cfg.Index.Dir = v
	}
	if v := c.String("embedding-host"); v != "" {
		cfg.Embedding.Host = v
	}
	if v := c.String("embedding-model"); v != "" {
		cfg.Embedding.Model = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[configKey] = cfg
	return nil
}

func configFrom(c *cli.Context) *config.Config {
	if cfg, ok := c.App.Metadata[configKey].(*config.Config); ok {
		return cfg
	}
	return config.Default()
}

func openEngine(cfg *config.Config, opts ...semindex.Option) (*semindex.Engine, error) {
	opts = append([]semindex.Option{semindex.WithConfig(cfg)}, opts...)
	engine, err := semindex.Open(cfg.Index.Dir, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	return engine, nil
}

func indexCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("at least one file or directory is required")
	}

	files, err := recordFiles(c.Args().Slice())
	if err != nil {
		return err
	}

	var docs []*core.Document
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		decoded, err := core.DecodeDocuments(data)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", path, err)
		}
		docs = append(docs, decoded...)
	}
	if len(docs) == 0 {
		return errors.New("no documents found")
	}

	engine, err := openEngine(configFrom(c))
	if err != nil {
		return err
	}
	defer engine.Close()

	summary, err := engine.Index(c.Context, docs...)
	fmt.Fprintf(c.App.Writer, "Documents: %d\n", len(docs))
	fmt.Fprintf(c.App.Writer, "Added: %d, skipped: %d, failed: %d\n",
		summary.Added, summary.SkippedDuplicate, summary.Failed)
	if err != nil {
		return fmt.Errorf("indexing finished with errors: %w", err)
	}
	return nil
}

// recordFiles expands directories into the JSON files below them.
func recordFiles(paths []string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".json") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", path, err)
		}
	}
	return files, nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("query is required")
	}

	engine, err := openEngine(configFrom(c))
	if err != nil {
		return err
	}
	defer engine.Close()

	hits, err := engine.Search(c.Context, query, c.Int("k"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if c.Bool("json") {
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}

	fmt.Fprintf(c.App.Writer, "Found %d hits\n", len(hits))
	for _, hit := range hits {
		fmt.Fprintf(c.App.Writer, "%d: %s#%d [%0.3f] %s\n", hit.Rank, hit.DocID, hit.ChunkID, hit.Score, hit.Summary)
	}
	return nil
}

func statsCommand(c *cli.Context) error {
	engine, err := openEngine(configFrom(c))
	if err != nil {
		return err
	}
	defer engine.Close()

	stats, err := engine.Stats(c.Context)
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Directory: %s\n", engine.Dir())
	fmt.Fprintf(w, "Generation: %s\n", stats.Generation)
	fmt.Fprintf(w, "Vectors: %d\n", stats.Size)
	fmt.Fprintf(w, "Dimension: %d\n", stats.Dimension)
	fmt.Fprintf(w, "Metric: %s\n", stats.Metric)
	fmt.Fprintf(w, "Documents: %d\n", stats.Documents)
	fmt.Fprintf(w, "Ledger bytes: %d\n", stats.LedgerSize)
	if stats.Model != "" {
		fmt.Fprintf(w, "Model: %s\n", stats.Model)
	}
	return nil
}

func reindexCommand(c *cli.Context) error {
	cfg := configFrom(c)

	reindexConfig := reindex.DefaultConfig()
	reindexConfig.BatchSize = c.Int("batch-size")
	reindexConfig.ReportInterval = c.Int("report-interval")
	reindexConfig.MaxRetries = c.Int("max-retries")
	reindexConfig.RetryDelay = c.Duration("retry-delay")
	reindexConfig.Model = cfg.Embedding.Model

	if reindexConfig.BatchSize <= 0 {
		return errors.New("batch-size must be greater than 0")
	}
	if reindexConfig.ReportInterval <= 0 {
		return errors.New("report-interval must be greater than 0")
	}
	if reindexConfig.MaxRetries <= 0 {
		return errors.New("max-retries must be greater than 0")
	}

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	w := c.App.Writer
	fmt.Fprintf(w, "Directory: %s\n", cfg.Index.Dir)
	fmt.Fprintf(w, "Embedding host: %s\n", cfg.Embedding.Host)
	fmt.Fprintf(w, "Embedding model: %s\n", cfg.Embedding.Model)
	fmt.Fprintln(w)

	result, err := engine.Reindex(c.Context, reindexConfig, w)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	fmt.Fprintf(w, "Rebuilt %s from %d documents (%d vectors) in %s\n",
		result.Generation, result.Documents, result.Summary.Added, result.Elapsed.Round(time.Millisecond))
	return nil
}

func serveCommand(c *cli.Context) error {
	cfg := configFrom(c)
	addr := c.String("addr")
	if addr == "" {
		addr = cfg.Server.Addr()
	}
	watchDir := c.String("watch")
	if watchDir == "" {
		watchDir = cfg.Watch.Dir
	}

	m := metrics.New()
	engine, err := openEngine(cfg, semindex.WithMetrics(m))
	if err != nil {
		return err
	}
	defer engine.Close()

	opts := []server.Option{
		server.WithIndexer(engine),
		server.WithStoreInfo(engine),
		server.WithMetrics(m),
	}
	if engine.Ledger() != nil {
		opts = append(opts, server.WithDocumentCounter(engine))
	}
	srv, err := server.New(engine, server.Config{
		Addr:            addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, opts...)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	var watcher *watch.Watcher
	if watchDir != "" {
		watcher, err = watch.New(watchDir, engine, watch.WithMoveProcessed(cfg.Watch.MoveProcessed))
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	slog.Info("serving", "addr", addr, "dir", cfg.Index.Dir, "watch", watchDir)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	engine.Wait()
	return nil
}

func watchCommand(c *cli.Context) error {
	cfg := configFrom(c)
	dir := c.Args().First()
	if dir == "" {
		dir = cfg.Watch.Dir
	}
	if dir == "" {
		return errors.New("watch directory is required")
	}

	engine, err := openEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	watcher, err := watch.New(dir, engine, watch.WithMoveProcessed(cfg.Watch.MoveProcessed || c.Bool("move")))
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("watching", "dir", dir, "index", cfg.Index.Dir)
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watcher failed: %w", err)
	}
	engine.Wait()

	indexed, failed := watcher.Counts()
	fmt.Fprintf(c.App.Writer, "Records indexed: %d, failed: %d\n", indexed, failed)
	return nil
}
