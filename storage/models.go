package storage

import (
	"cmp"
	"maps"
	"slices"
	"time"

	"github.com/poiesic/semindex/core"
)

// DocumentRecord is a ledger entry: the document as last merged, with
// ledger timestamps.
type DocumentRecord struct {
	Document   core.Document `json:"document"`
	InsertedAt time.Time     `json:"inserted_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Checkpoint describes the store generation last committed for an index
// directory and the embedding model that produced it.
type Checkpoint struct {
	Name       string
	Generation string
	Size       int
	Dimension  int
	Metric     core.Metric
	Model      string
	UpdatedAt  time.Time
}

// MergeDocument folds an incoming submission of the same document into an
// existing one. Chunks are matched by chunk_id: incoming chunks replace
// existing ones with the same ID and new IDs are added. Document-level
// fields are overwritten only by non-empty incoming values. The result is
// a new document with chunks ordered by chunk_id.
func MergeDocument(existing, incoming *core.Document) *core.Document {
	merged := *existing
	if incoming.FileType != "" {
		merged.FileType = incoming.FileType
	}
	if incoming.FilePath != "" {
		merged.FilePath = incoming.FilePath
	}
	if incoming.DocSummary != "" {
		merged.DocSummary = incoming.DocSummary
	}
	if len(incoming.Sentences) > 0 {
		merged.Sentences = slices.Clone(incoming.Sentences)
	} else {
		merged.Sentences = slices.Clone(existing.Sentences)
	}

	byID := make(map[int]core.Chunk, len(existing.Chunks)+len(incoming.Chunks))
	for _, c := range existing.Chunks {
		byID[c.ChunkID] = c
	}
	for _, c := range incoming.Chunks {
		byID[c.ChunkID] = c
	}
	merged.Chunks = slices.SortedFunc(maps.Values(byID), func(a, b core.Chunk) int {
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})
	if len(merged.Chunks) == 0 {
		merged.Chunks = nil
	}
	return &merged
}
