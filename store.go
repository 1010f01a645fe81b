package mvcc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/SimonWaldherr/tinymvcc/internal/chain"
	"github.com/SimonWaldherr/tinymvcc/internal/durability"
	"github.com/SimonWaldherr/tinymvcc/internal/mvccerr"
	"github.com/SimonWaldherr/tinymvcc/internal/reaper"
	"github.com/SimonWaldherr/tinymvcc/internal/row"
	"github.com/SimonWaldherr/tinymvcc/internal/txn"
	"github.com/SimonWaldherr/tinymvcc/internal/writepath"
)

// Re-exported value types so callers never need to import the internal
// packages directly to build a RowID or interpret an error Kind.
type (
	TableID  = row.TableID
	RowKey   = row.Key
	RowID    = row.ID
	Kind     = mvccerr.Kind
	StoreErr = mvccerr.Error
)

// Error Kind constants, re-exported so callers can compare the Kind() of
// a *StoreErr (obtained with errors.As) without an internal import.
const (
	KindWriteWriteConflict   = mvccerr.KindWriteWriteConflict
	KindRowNotFound          = mvccerr.KindRowNotFound
	KindDuplicateKey         = mvccerr.KindDuplicateKey
	KindTransactionNotActive = mvccerr.KindTransactionNotActive
	KindDurabilityError      = mvccerr.KindDurabilityError
	KindCorruption           = mvccerr.KindCorruption
)

// IntKey and BytesKey build a RowID's key half. UUIDKey builds one from
// a uuid.UUID's byte encoding.
var (
	IntKey   = row.IntKey
	BytesKey = row.BytesKey
	UUIDKey  = row.UUIDKey
)

// Store is the embeddable MVCC core: one transaction registry, one
// version-chain index, and a durability bridge, wired together behind
// Begin/Commit/Rollback.
type Store struct {
	registry *txn.Registry
	chain    *chain.Index
	writer   *writepath.Writer

	bridge      durability.Persister
	closeBridge func() error

	reaper *reaper.Reaper
	logger *slog.Logger
}

// New builds a Store from cfg. If cfg.DurabilityPath is empty, commits
// are persisted to an in-memory bridge that is lost when the Store is
// discarded — the right default for an embedded cache, not for data
// that must survive a restart. If cfg.ReaperSchedule is non-empty, a
// background sweep starts immediately and runs until Close.
func New(cfg StoreConfig) (*Store, error) {
	bridge, closeBridge, err := cfg.persister()
	if err != nil {
		return nil, fmt.Errorf("mvcc: build durability bridge: %w", err)
	}

	registry := txn.New()
	idx := chain.New()

	s := &Store{
		registry:    registry,
		chain:       idx,
		writer:      writepath.New(idx),
		bridge:      bridge,
		closeBridge: closeBridge,
		logger:      slog.Default(),
	}

	if cfg.ReaperSchedule != "" {
		rp := reaper.New(registry, idx, s.rollbackByID, reaper.Config{
			Schedule: cfg.ReaperSchedule,
			MaxAge:   cfg.ReaperMaxAge,
			Logger:   s.logger,
		})
		if err := rp.Start(); err != nil {
			return nil, fmt.Errorf("mvcc: start reaper: %w", err)
		}
		s.reaper = rp
	}

	return s, nil
}

// Close stops the background reaper, if any, and closes the durability
// bridge. A Store must not be used after Close returns.
func (s *Store) Close() error {
	if s.reaper != nil {
		s.reaper.Stop()
	}
	if s.closeBridge != nil {
		return s.closeBridge()
	}
	return nil
}

// Tx is a handle to one in-flight transaction. A Tx must not be shared
// across goroutines; the Store itself is safe for concurrent use by
// many Txs at once.
type Tx struct {
	store *Store
	rec   *txn.Record
}

// Begin starts a new transaction under snapshot isolation. The
// returned Tx's reads observe every transaction committed strictly
// before this call returns, and none committed after.
func (s *Store) Begin() (*Tx, error) {
	rec, err := s.registry.Begin(txn.SnapshotIsolation)
	if err != nil {
		return nil, err
	}
	return &Tx{store: s, rec: rec}, nil
}

// Insert stages a new row. Fails with KindDuplicateKey if a live
// version of id is already visible to this Tx, or KindWriteWriteConflict
// if another transaction is concurrently writing the same row.
func (tx *Tx) Insert(table TableID, key RowKey, data []byte) error {
	id := row.ID{Table: table, Key: key}
	err := tx.store.writer.Insert(tx.rec, id, data)
	tx.store.logConflict(err, "insert", tx.rec.ID, id)
	return err
}

// Update replaces the value of an existing row. Fails with
// KindRowNotFound if no version of id is visible to this Tx, or
// KindWriteWriteConflict per the chain's eager detection.
func (tx *Tx) Update(table TableID, key RowKey, data []byte) error {
	id := row.ID{Table: table, Key: key}
	err := tx.store.writer.Update(tx.rec, id, data)
	tx.store.logConflict(err, "update", tx.rec.ID, id)
	return err
}

// Delete stages a tombstone for an existing row. Fails with
// KindRowNotFound if no version of id is visible to this Tx, or
// KindWriteWriteConflict per the chain's eager detection.
func (tx *Tx) Delete(table TableID, key RowKey) error {
	id := row.ID{Table: table, Key: key}
	err := tx.store.writer.Delete(tx.rec, id)
	tx.store.logConflict(err, "delete", tx.rec.ID, id)
	return err
}

// logConflict logs a write-write conflict rejection at Debug level;
// every other write outcome (success, row-not-found, duplicate-key, a
// terminal transaction) is routine control flow the caller already
// decides policy for, so it stays quiet.
func (s *Store) logConflict(err error, op string, txID row.TxID, id row.ID) {
	if kind, ok := mvccerr.KindOf(err); ok && kind == mvccerr.KindWriteWriteConflict {
		s.logger.Debug("mvcc: write-write conflict rejected", "op", op, "tx", txID, "row", id.String())
	}
}

// Get returns the payload visible to this Tx's snapshot, and whether a
// live (non-tombstone) version exists at all.
func (tx *Tx) Get(table TableID, key RowKey) ([]byte, bool) {
	return tx.store.writer.Get(tx.rec, row.ID{Table: table, Key: key})
}

// Commit drives the commit protocol: Active -> Committing, assign a
// commit timestamp, persist the write-set through the durability
// bridge, publish every staged version into the chain, then
// Committing -> Committed. A durability failure is a hard abort: every
// pending version this Tx staged is discarded, as if it had never
// written anything, and the returned error carries KindDurabilityError.
func (tx *Tx) Commit(ctx context.Context) error {
	writeSet := tx.rec.WriteSet()

	err := tx.store.registry.Commit(tx.rec, func(commitTS row.Timestamp) error {
		records := make([]durability.WriteRecord, 0, len(writeSet))
		for _, id := range writeSet {
			v := tx.store.chain.VisibleVersion(id, tx.rec)
			if v == nil {
				continue
			}
			records = append(records, durability.WriteRecord{RowID: id, Data: v.Data})
		}

		env := durability.NewEnvelope(commitTS, records)
		if perr := tx.store.bridge.Persist(ctx, env); perr != nil {
			return mvccerr.Wrap(mvccerr.KindDurabilityError, "commit", perr)
		}

		for _, id := range writeSet {
			tx.store.chain.Publish(id, tx.rec.ID, commitTS)
		}
		return nil
	})

	if err != nil {
		if kind, ok := mvccerr.KindOf(err); ok && kind == mvccerr.KindDurabilityError {
			for _, id := range writeSet {
				tx.store.chain.Discard(id, tx.rec.ID)
			}
			tx.store.logger.Warn("mvcc: commit hard-aborted by durability failure", "tx", tx.rec.ID, "error", err)
		}
		return err
	}
	tx.store.logger.Debug("mvcc: commit", "tx", tx.rec.ID, "rows", len(writeSet))
	return nil
}

// Rollback discards every version this Tx staged and transitions it to
// Aborted. Idempotent once Aborted; returns KindTransactionNotActive if
// the Tx already committed.
func (tx *Tx) Rollback() error {
	return tx.store.rollback(tx.rec)
}

func (s *Store) rollback(rec *txn.Record) error {
	if err := s.registry.Rollback(rec); err != nil {
		return err
	}
	for _, id := range rec.WriteSet() {
		s.chain.Discard(id, rec.ID)
	}
	s.logger.Debug("mvcc: rollback", "tx", rec.ID)
	return nil
}

// rollbackByID satisfies reaper.RollbackFunc, letting the reaper roll
// back an abandoned transaction without touching registry/chain
// internals directly.
func (s *Store) rollbackByID(id row.TxID) error {
	rec, ok := s.registry.Lookup(id)
	if !ok {
		return mvccerr.New(mvccerr.KindTransactionNotActive, "rollback", "")
	}
	return s.rollback(rec)
}
