// Package writepath implements the write path: insert/update/delete,
// each checked against the caller's snapshot and the chain's
// pending/committed state before a single write is ever staged, so
// conflicts surface synchronously at write time rather than at commit.
//
// What: the three mutating operations plus the RowNotFound/DuplicateKey
// checks that precede the chain's own WriteWriteConflict detection.
// How: each operation resolves the caller's visible version first, then
// stages a new pending version through the chain index, recording the
// row in the transaction's write set only once the stage succeeds.
// Why: a caller that gets WriteWriteConflict back from Insert/Update/
// Delete must never have mutated shared state — the transaction's
// write set, the chain, and the registry are either all left alone or
// all staged together, because the caller is expected to just call
// Rollback and the core must not have done anything irreversible yet.
package writepath

import (
	"github.com/SimonWaldherr/tinymvcc/internal/chain"
	"github.com/SimonWaldherr/tinymvcc/internal/mvccerr"
	"github.com/SimonWaldherr/tinymvcc/internal/row"
	"github.com/SimonWaldherr/tinymvcc/internal/txn"
)

// Writer applies mutations against a single chain index. Conflict and
// visibility checks are entirely the chain index's own responsibility;
// the Writer never consults the transaction registry directly.
type Writer struct {
	chain *chain.Index
}

// New builds a Writer over idx.
func New(idx *chain.Index) *Writer {
	return &Writer{chain: idx}
}

func requireActive(tx *txn.Record, op string) error {
	if tx.State() != txn.Active {
		return mvccerr.New(mvccerr.KindTransactionNotActive, op, "")
	}
	return nil
}

// Insert stages a new row version for tx. Fails with DuplicateKey if a
// non-tombstone version of id is already visible to tx's snapshot, or
// WriteWriteConflict per the chain's eager detection.
func (w *Writer) Insert(tx *txn.Record, id row.ID, data []byte) error {
	if err := requireActive(tx, "insert"); err != nil {
		return err
	}

	if existing := w.chain.VisibleVersion(id, tx); existing != nil && !existing.IsTombstone() {
		return mvccerr.New(mvccerr.KindDuplicateKey, "insert", id.String())
	}

	v := row.NewVersion(id, data, tx.ID)
	if err := w.chain.AppendPending(id, v, tx); err != nil {
		return err
	}
	tx.RecordWrite(id)
	return nil
}

// Update stages a replacement version for id. Fails with RowNotFound if
// no version of id is visible to tx's snapshot, or WriteWriteConflict
// per the chain's eager detection. The prior visible version's
// deleter stamp lands only once the update is published at commit.
func (w *Writer) Update(tx *txn.Record, id row.ID, data []byte) error {
	if err := requireActive(tx, "update"); err != nil {
		return err
	}

	existing := w.chain.VisibleVersion(id, tx)
	if existing == nil || existing.IsTombstone() {
		return mvccerr.New(mvccerr.KindRowNotFound, "update", id.String())
	}

	v := row.NewVersion(id, data, tx.ID)
	if err := w.chain.AppendPending(id, v, tx); err != nil {
		return err
	}
	tx.RecordWrite(id)
	return nil
}

// Delete stages a tombstone for id. Fails with RowNotFound if no
// version of id is visible to tx's snapshot, or WriteWriteConflict per
// the chain's eager detection.
func (w *Writer) Delete(tx *txn.Record, id row.ID) error {
	if err := requireActive(tx, "delete"); err != nil {
		return err
	}

	existing := w.chain.VisibleVersion(id, tx)
	if existing == nil || existing.IsTombstone() {
		return mvccerr.New(mvccerr.KindRowNotFound, "delete", id.String())
	}

	v := row.NewTombstone(id, tx.ID)
	if err := w.chain.AppendPending(id, v, tx); err != nil {
		return err
	}
	tx.RecordWrite(id)
	return nil
}

// Get returns the payload visible to tx for id, or (nil, false) if no
// row is visible, including the case where the visible version is a
// tombstone: a deleted row reads as absent, never as an error.
func (w *Writer) Get(tx *txn.Record, id row.ID) ([]byte, bool) {
	v := w.chain.VisibleVersion(id, tx)
	if v == nil || v.IsTombstone() {
		return nil, false
	}
	return v.DataCopy(), true
}
