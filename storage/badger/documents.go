package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (storage.DocumentRepository, error) {
	if backend == nil {
		return nil, errors.New("backend required")
	}
	return &DocumentRepository{
		backend: backend,
	}, nil
}

// Close releases resources. DocumentRepository has no resources to release;
// the backend is closed by its owner.
func (r *DocumentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// PutDocuments stores document records, merging into existing ones.
func (r *DocumentRepository) PutDocuments(ctx context.Context, docs ...*core.Document) ([]*storage.DocumentRecord, error) {
	for i, doc := range docs {
		if doc == nil || doc.DocID == "" {
			return nil, fmt.Errorf("%w: document %d has no doc_id", storage.ErrInvalidRecord, i)
		}
	}

	results := make([]*storage.DocumentRecord, 0, len(docs))
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, doc := range docs {
			key := makeDocumentKey(doc.DocID)
			existing, err := readDocument(tx, key)
			if err != nil {
				return err
			}

			var record *storage.DocumentRecord
			if existing == nil {
				record = &storage.DocumentRecord{
					Document:   *storage.MergeDocument(&core.Document{DocID: doc.DocID}, doc),
					InsertedAt: now,
					UpdatedAt:  now,
				}
			} else {
				record = &storage.DocumentRecord{
					Document:   *storage.MergeDocument(&existing.Document, doc),
					InsertedAt: existing.InsertedAt,
					UpdatedAt:  now,
				}
			}

			value, err := storage.MarshalDocumentRecord(record)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}
			results = append(results, record)
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}

	r.backend.logger.Debug("stored documents", "count", len(results))
	return results, nil
}

// GetDocument retrieves a single record by doc_id.
func (r *DocumentRepository) GetDocument(ctx context.Context, docID string) (*storage.DocumentRecord, error) {
	var result *storage.DocumentRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, makeDocumentKey(docID))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// GetDocuments retrieves multiple records by doc_id.
func (r *DocumentRepository) GetDocuments(ctx context.Context, docIDs ...string) ([]*storage.DocumentRecord, error) {
	var result []*storage.DocumentRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range docIDs {
			record, err := readDocument(tx, makeDocumentKey(id))
			if err != nil {
				return err
			}
			if record != nil {
				result = append(result, record)
			}
		}
		return nil
	}, false)
	return result, err
}

// ListDocuments returns up to limit records after the given doc_id.
func (r *DocumentRepository) ListDocuments(ctx context.Context, after string, limit int) ([]*storage.DocumentRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", storage.ErrInvalidRecord, limit)
	}

	var results []*storage.DocumentRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeDocumentKey(after)); iter.Valid(); iter.Next() {
			item := iter.Item()
			if after != "" && docIDFromKey(item.Key()) == after {
				continue
			}

			var record *storage.DocumentRecord
			err := item.Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalDocumentRecord(val)
				return err
			})
			if err != nil {
				return err
			}

			results = append(results, record)
			if len(results) == limit {
				break
			}
		}
		return nil
	}, false)

	return results, err
}

// CountDocuments returns the number of stored records.
func (r *DocumentRepository) CountDocuments(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// DeleteDocuments removes records by doc_id.
func (r *DocumentRepository) DeleteDocuments(ctx context.Context, docIDs ...string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range docIDs {
			key := makeDocumentKey(id)
			if _, err := tx.Get(key); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
				}
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// readDocument reads a document record from the transaction.
// Returns nil, nil if the key doesn't exist.
func readDocument(tx *badger.Txn, key []byte) (*storage.DocumentRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *storage.DocumentRecord
	err = item.Value(func(val []byte) error {
		var err error
		record, err = storage.UnmarshalDocumentRecord(val)
		return err
	})
	return record, err
}
