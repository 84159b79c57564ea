package reindex

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports how many ledger documents a rebuild has covered.
// Output is a single carriage-return line rewritten at each report.
type ProgressTracker struct {
	writer       io.Writer
	total        int
	documents    int
	chunks       int
	reportEvery  int
	lastReported int
	startTime    time.Time
	started      bool
	mu           sync.Mutex
}

// NewProgressTracker creates a tracker for total documents that reports
// every reportEvery documents. A nil writer discards output.
func NewProgressTracker(writer io.Writer, total, reportEvery int) *ProgressTracker {
	if writer == nil {
		writer = io.Discard
	}
	if reportEvery <= 0 {
		reportEvery = 1
	}
	return &ProgressTracker{
		writer:      writer,
		total:       total,
		reportEvery: reportEvery,
	}
}

// Start resets the counters and starts the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.documents = 0
	p.chunks = 0
	p.lastReported = 0
}

// Advance records that docs more documents producing chunks chunks were
// processed.
func (p *ProgressTracker) Advance(docs, chunks int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.documents = min(p.documents+docs, p.total)
	p.chunks += chunks

	if p.documents-p.lastReported >= p.reportEvery {
		p.report()
		p.lastReported = p.documents
	}
}

// Finish prints the final line.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.report()
	fmt.Fprintln(p.writer)
}

// Elapsed returns the time since Start.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}
	return time.Since(p.startTime)
}

// Counts returns the documents and chunks recorded so far.
func (p *ProgressTracker) Counts() (documents, chunks int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.documents, p.chunks
}

func (p *ProgressTracker) report() {
	percentage := 0.0
	if p.total > 0 {
		percentage = float64(p.documents) / float64(p.total) * 100.0
	}
	rate := 0.0
	if elapsed := time.Since(p.startTime).Seconds(); elapsed > 0 {
		rate = float64(p.documents) / elapsed
	}

	fmt.Fprintf(p.writer, "\rReindexed %d/%d documents (%.1f%%), %d chunks - %.1f docs/s",
		p.documents, p.total, percentage, p.chunks, rate)
}
