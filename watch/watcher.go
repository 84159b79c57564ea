// Package watch indexes document records dropped into an inbox directory.
//
// The watcher reacts to *.json files created or rewritten in the inbox,
// waits for writes to settle, decodes each file as one document record or
// an array of them, and submits the documents to the ingestion queue. With
// WithMoveProcessed, files are moved to done/ once indexed and to failed/
// when they could not be decoded or nothing in them was indexed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/poiesic/semindex/core"
)

const (
	// DoneDir receives files whose documents were indexed.
	DoneDir = "done"

	// FailedDir receives files that could not be indexed.
	FailedDir = "failed"

	// DefaultSettle is how long a file must go unmodified before it is read.
	DefaultSettle = 250 * time.Millisecond
)

var (
	// ErrSubmitterRequired is returned when no submitter is provided.
	ErrSubmitterRequired = errors.New("submitter required")

	// ErrDirRequired is returned when no inbox directory is provided.
	ErrDirRequired = errors.New("inbox directory required")
)

// Submitter queues a document for asynchronous indexing.
type Submitter interface {
	Submit(doc *core.Document, callback func(core.IndexSummary, error)) error
}

// Watcher watches an inbox directory for document records.
type Watcher struct {
	dir           string
	submitter     Submitter
	moveProcessed bool
	settle        time.Duration
	logger        *slog.Logger

	mu       sync.Mutex
	timers   map[string]*time.Timer
	inflight map[string]struct{}
	ready    chan string
	stop     chan struct{}
	wg       sync.WaitGroup

	indexed atomic.Int64
	failed  atomic.Int64
}

// Option configures a Watcher.
type Option func(*Watcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		w.logger = logger
		return nil
	}
}

// WithMoveProcessed moves handled files into done/ or failed/.
func WithMoveProcessed(enabled bool) Option {
	return func(w *Watcher) error {
		w.moveProcessed = enabled
		return nil
	}
}

// WithSettle sets how long a file must be quiet before it is read.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) error {
		if d < 0 {
			return fmt.Errorf("settle must not be negative, got %v", d)
		}
		w.settle = d
		return nil
	}
}

// New creates a watcher for dir. The directory is created if missing.
func New(dir string, submitter Submitter, opts ...Option) (*Watcher, error) {
	if dir == "" {
		return nil, ErrDirRequired
	}
	if submitter == nil {
		return nil, ErrSubmitterRequired
	}

	w := &Watcher{
		dir:       dir,
		submitter: submitter,
		settle:    DefaultSettle,
		logger:    slog.Default().With("component", "watcher"),
		timers:    make(map[string]*time.Timer),
		inflight:  make(map[string]struct{}),
		ready:     make(chan string, 64),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(w); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox: %w", err)
	}
	if w.moveProcessed {
		for _, sub := range []string{DoneDir, FailedDir} {
			if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
				return nil, fmt.Errorf("failed to create %s: %w", sub, err)
			}
		}
	}
	return w, nil
}

// Counts returns how many files were indexed and how many failed.
func (w *Watcher) Counts() (indexed, failed int) {
	return int(w.indexed.Load()), int(w.failed.Load())
}

// Run picks up files already in the inbox, then watches for new ones until
// ctx is cancelled. It waits for in-flight files before returning.
// A Watcher runs once.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching inbox", "dir", w.dir)

	defer w.wg.Wait()
	defer w.stopTimers()
	defer close(w.stop)

	if err := w.scan(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				if isRecord(event.Name) {
					w.schedule(event.Name)
				}
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "err", err)

		case path := <-w.ready:
			w.process(path)
		}
	}
}

// scan schedules every record already present in the inbox.
func (w *Watcher) scan() error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read inbox: %w", err)
	}
	for _, e := range entries {
		path := filepath.Join(w.dir, e.Name())
		if !e.IsDir() && isRecord(path) {
			w.schedule(path)
		}
	}
	return nil
}

func isRecord(path string) bool {
	name := filepath.Base(path)
	return strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".")
}

// schedule (re)starts the settle timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.settle)
		return
	}
	w.timers[path] = time.AfterFunc(w.settle, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		select {
		case w.ready <- path:
		case <-w.stop:
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

// process decodes path and submits its documents.
func (w *Watcher) process(path string) {
	w.mu.Lock()
	if _, busy := w.inflight[path]; busy {
		w.mu.Unlock()
		return
	}
	w.inflight[path] = struct{}{}
	w.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.Error("error reading record", "path", path, "err", err)
		}
		w.release(path)
		return
	}

	docs, err := core.DecodeDocuments(data)
	if err == nil && len(docs) == 0 {
		err = fmt.Errorf("%w: no documents", core.ErrInvalidDocument)
	}
	if err != nil {
		w.logger.Warn("undecodable record", "path", path, "err", err)
		w.finish(path, false)
		return
	}

	w.wg.Add(1)
	tracker := &fileResult{remaining: int32(len(docs))}
	for _, doc := range docs {
		err := w.submitter.Submit(doc, func(summary core.IndexSummary, err error) {
			if err != nil {
				w.logger.Warn("record indexed with errors", "path", path, "docID", doc.DocID, "err", err)
			}
			if summary.Added > 0 || summary.SkippedDuplicate > 0 {
				tracker.ok.Store(true)
			}
			tracker.done(func(ok bool) {
				w.finish(path, ok)
				w.wg.Done()
			})
		})
		if err != nil {
			w.logger.Error("error submitting document", "path", path, "err", err)
			tracker.done(func(ok bool) {
				w.finish(path, ok)
				w.wg.Done()
			})
		}
	}
}

// fileResult joins the callbacks of every document in one file.
type fileResult struct {
	remaining int32
	ok        atomic.Bool
	mu        sync.Mutex
}

func (r *fileResult) done(fn func(ok bool)) {
	r.mu.Lock()
	r.remaining--
	last := r.remaining == 0
	r.mu.Unlock()
	if last {
		fn(r.ok.Load())
	}
}

// finish records the outcome for path and moves it when configured.
func (w *Watcher) finish(path string, ok bool) {
	if ok {
		w.indexed.Add(1)
	} else {
		w.failed.Add(1)
	}

	if w.moveProcessed {
		target := DoneDir
		if !ok {
			target = FailedDir
		}
		dest := filepath.Join(w.dir, target, filepath.Base(path))
		if err := os.Rename(path, dest); err != nil {
			w.logger.Error("error moving record", "path", path, "dest", dest, "err", err)
		} else {
			w.logger.Debug("moved record", "path", path, "dest", dest)
		}
	}
	w.release(path)
}

func (w *Watcher) release(path string) {
	w.mu.Lock()
	delete(w.inflight, path)
	w.mu.Unlock()
}
