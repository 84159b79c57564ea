package badger

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/poiesic/semindex/storage"
)

// ledgerValueLogSize keeps value log files small; ledger records are a few
// kilobytes each.
const ledgerValueLogSize = 64 << 20

// Backend owns the badger database behind the document ledger.
type Backend struct {
	db       *badger.DB
	inMemory bool
	logger   *slog.Logger
}

// slogAdapter routes badger's internal logging onto slog. Badger is chatty
// at info level, so info messages are demoted to debug.
type slogAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*slogAdapter)(nil)

func (a *slogAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Warningf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Infof(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

func (a *slogAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBackend opens the ledger database in dir, creating the directory when
// needed. With inMemory set dir is ignored and nothing touches disk.
func OpenBackend(dir string, inMemory bool) (*Backend, error) {
	if !inMemory {
		if err := ensureDir(dir); err != nil {
			return nil, err
		}
	}

	logger := slog.Default().With("component", "ledger")
	db, err := badger.Open(ledgerOptions(dir, inMemory, logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	return &Backend{
		db:       db,
		inMemory: inMemory,
		logger:   logger,
	}, nil
}

func ensureDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("ledger directory is required")
	}
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		return os.MkdirAll(dir, 0o755)
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%s is not a directory", dir)
	}
	return nil
}

func ledgerOptions(dir string, inMemory bool, logger *slog.Logger) badger.Options {
	opts := badger.DefaultOptions(dir)
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	return opts.
		WithLogger(&slogAdapter{logger: logger}).
		WithCompression(options.None).
		WithNumVersionsToKeep(1).
		WithValueLogFileSize(ledgerValueLogSize)
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

// IsClosed reports whether the database has been closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// DiskSize returns the bytes used by the LSM tree and the value log.
// It is zero for an in-memory ledger.
func (b *Backend) DiskSize() int64 {
	if b.inMemory || b.db.IsClosed() {
		return 0
	}
	lsm, vlog := b.db.Size()
	return lsm + vlog
}

// WithTx runs fn in a transaction that is discarded afterwards. Write
// transactions must be committed by fn.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// WithTransaction runs fn in a write transaction and commits it when fn
// succeeds. Implements storage.Repository.
func (b *Backend) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return b.WithTx(func(tx *badger.Txn) error {
		if err := fn(ctx); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}
