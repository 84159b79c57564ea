package storage

import (
	"context"

	"github.com/poiesic/semindex/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository is the ledger of document records that have been
// submitted for indexing. It is the source a store is rebuilt from.
type DocumentRepository interface {
	Repository

	// PutDocuments stores document records keyed by doc_id. A record whose
	// doc_id already exists is merged into it with MergeDocument.
	// Returns the stored records with timestamps populated.
	PutDocuments(ctx context.Context, docs ...*core.Document) ([]*DocumentRecord, error)

	// GetDocument retrieves a single record by doc_id.
	// Returns ErrNotFound if the record doesn't exist.
	GetDocument(ctx context.Context, docID string) (*DocumentRecord, error)

	// GetDocuments retrieves multiple records by doc_id.
	// Returns only the records that exist (no error for missing records).
	GetDocuments(ctx context.Context, docIDs ...string) ([]*DocumentRecord, error)

	// ListDocuments returns up to limit records whose doc_id sorts after
	// the given one, in doc_id order. An empty after starts from the first.
	ListDocuments(ctx context.Context, after string, limit int) ([]*DocumentRecord, error)

	// CountDocuments returns the number of stored records.
	CountDocuments(ctx context.Context) (int, error)

	// DeleteDocuments removes records by doc_id.
	// Returns ErrNotFound if any record doesn't exist.
	DeleteDocuments(ctx context.Context, docIDs ...string) error
}

// CheckpointRepository records the state of the last committed store
// generation per index directory.
type CheckpointRepository interface {
	// SaveCheckpoint persists a checkpoint, replacing any with the same name.
	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint with the given name.
	// Returns nil, nil if no checkpoint exists.
	LoadCheckpoint(ctx context.Context, name string) (*Checkpoint, error)
}
