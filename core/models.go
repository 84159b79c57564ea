package core

import (
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// ContentHash returns the deduplication key for a canonical text.
// It is a 64-bit BLAKE2b digest rendered as 16 lowercase hex characters.
// Identical text always yields the identical key.
func ContentHash(text string) string {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// DocIDFromPath derives a stable document ID from a source file path.
// The base name is used when present so re-submitting the same file
// maps to the same ledger entry.
func DocIDFromPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return ""
	}
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	return base
}

// DocIDFromContent derives a stable document ID for records that carry no
// file path. It is a name-based UUID over the summary and sentence text.
func DocIDFromContent(summary string, sentences []string) string {
	var b strings.Builder
	b.WriteString(summary)
	for _, s := range sentences {
		b.WriteByte('\n')
		b.WriteString(s)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(b.String())).String()
}

// Metric identifies the similarity function a store was built with.
type Metric string

const (
	// MetricInnerProduct ranks by dot product over unit-length vectors,
	// which is equivalent to cosine similarity. Higher scores are better.
	MetricInnerProduct Metric = "ip"
	// MetricL2 ranks by squared Euclidean distance over raw vectors.
	// Lower scores are better.
	MetricL2 Metric = "l2"
)

// Normalized reports whether vectors stored under this metric are scaled
// to unit length before they are added.
func (m Metric) Normalized() bool {
	return m == MetricInnerProduct
}

// Document is a source document as handed over by the upstream pipeline
// after extraction, cleaning and enrichment.
type Document struct {
	DocID      string   `json:"doc_id"`
	FileType   string   `json:"file_type,omitempty"`
	FilePath   string   `json:"file_path,omitempty"`
	DocSummary string   `json:"doc_summary,omitempty"`
	Sentences  []string `json:"sentences,omitempty"` // Pre-chunking input, consumed by the chunker
	Chunks     []Chunk  `json:"chunks,omitempty"`
}

// Chunk is a bounded, contiguous run of a document's sentences.
type Chunk struct {
	ChunkID   int                 `json:"chunk_id"`
	Sentences []string            `json:"sentences"`
	Entities  map[string][]string `json:"entities,omitempty"`
	Summary   string              `json:"summary,omitempty"`
}

// Metadata describes exactly one indexed vector. Records are created at
// append time and never change afterwards.
type Metadata struct {
	DocID       string   `json:"doc_id"`
	ChunkID     int      `json:"chunk_id"`
	FileType    string   `json:"file_type"`
	FilePath    string   `json:"file_path"`
	ContentHash string   `json:"content_hash"`
	Summary     string   `json:"summary"`
	Sentences   []string `json:"sentences"`
}

// Item is one canonicalized chunk on its way into the store.
// Vector is nil until the embedding provider has run.
type Item struct {
	Text     string
	Metadata Metadata
	Vector   []float32
}

// Hit is one ranked search result.
type Hit struct {
	Rank     int     `json:"rank"`
	Score    float32 `json:"score"`
	DocID    string  `json:"doc_id"`
	ChunkID  int     `json:"chunk_id"`
	FilePath string  `json:"file_path"`
	Summary  string  `json:"summary"`
}

// IndexSummary reports the outcome of an indexing call. Every count is in
// chunks.
type IndexSummary struct {
	Added            int `json:"added"`
	SkippedDuplicate int `json:"skipped_duplicate"`
	// Failed counts chunks that were not indexed. A rejected document adds
	// all of its chunks, or one when it has none.
	Failed int `json:"failed"`
}

// Merge adds the counts of other into s.
func (s *IndexSummary) Merge(other IndexSummary) {
	s.Added += other.Added
	s.SkippedDuplicate += other.SkippedDuplicate
	s.Failed += other.Failed
}

// Total returns the number of items the summary accounts for.
func (s IndexSummary) Total() int {
	return s.Added + s.SkippedDuplicate + s.Failed
}
