// Package chain is the version chain index: the mapping from a row's
// identity to the ordered history of committed versions ever written
// for it, plus at most one pending (uncommitted) head.
//
// What: visible-version lookup, pending-version staging with eager
// write-write conflict detection, publish/discard on commit/rollback,
// and the pruning sweep a reaper drives.
// How: a map of per-row entries, each with its own mutex, so writes to
// different rows never contend and the conflict check plus the
// pending-head assignment for one row are a single atomic step.
// Why: eager conflict detection needs the append of a pending version
// and the check that gates it to happen under one lock; a per-row
// mutex held across both is what makes "exactly one of two racing
// writers wins" true without any global lock. This index never calls
// back into the transaction registry while holding a row's lock: it
// keeps the rival's own *txn.Record alongside its pending version and
// reads that record's lifecycle state through a lock-free accessor, so
// a row lock and the registry's lock are never nested in either order.
package chain

import (
	"fmt"
	"sync"

	"github.com/SimonWaldherr/tinymvcc/internal/mvccerr"
	"github.com/SimonWaldherr/tinymvcc/internal/row"
	"github.com/SimonWaldherr/tinymvcc/internal/txn"
	"github.com/SimonWaldherr/tinymvcc/internal/visibility"
)

// entry is one row's version chain: committed history oldest-to-newest,
// plus at most one pending head.
type entry struct {
	mu      sync.Mutex
	history []*row.Version
	pending *row.Version

	// pendingTx is the transaction record that owns pending, so a rival
	// writer can check its lifecycle state without any registry lookup.
	pendingTx *txn.Record
}

// Index owns every version chain in the store.
type Index struct {
	mu   sync.Mutex // guards creation of new entries in rows
	rows map[string]*entry
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		rows: make(map[string]*entry),
	}
}

func (ix *Index) entryFor(id row.ID, create bool) (*entry, bool) {
	key := id.MapKey()

	ix.mu.Lock()
	e, ok := ix.rows[key]
	if !ok && create {
		e = &entry{}
		ix.rows[key] = e
		ok = true
	}
	ix.mu.Unlock()
	return e, ok
}

// VisibleVersion returns the unique version of id visible to tx's
// snapshot, or nil if none exists. The returned version may be a
// tombstone; callers that want a deleted row to read as absent should
// check IsTombstone() and treat that case the same as nil.
func (ix *Index) VisibleVersion(id row.ID, tx *txn.Record) *row.Version {
	e, ok := ix.entryFor(id, false)
	if !ok {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil && e.pendingTx.ID == tx.ID {
		if visibility.Visible(tx.ID, tx.BeginTS, e.pending) {
			return e.pending
		}
	}
	for i := len(e.history) - 1; i >= 0; i-- {
		if visibility.Visible(tx.ID, tx.BeginTS, e.history[i]) {
			return e.history[i]
		}
	}
	return nil
}

// ownsPendingSlot reports whether rec still holds the claim a pending
// version was staged under: true while rec is Active or Committing, the
// two non-terminal states a pending write can be observed in. A
// Committing owner is between having its commit_ts assigned and having
// Publish/Discard actually clear the slot, so it still owns it; only
// Committed and Aborted (both of which only ever follow a Publish or
// Discard call that already cleared e.pending) mean the slot is free.
func ownsPendingSlot(rec *txn.Record) bool {
	switch rec.State() {
	case txn.Active, txn.Committing:
		return true
	default:
		return false
	}
}

// AppendPending admits v as the pending head for id on behalf of tx,
// or reports WriteWriteConflict when:
//
//   - another transaction holds a pending version on id and still owns
//     that slot, or
//   - the most recently committed version of id was committed after
//     tx's snapshot (someone modified or deleted this row after tx began).
//
// Both checks and the pending-head assignment happen under id's single
// row lock, so exactly one of two racing callers for the same id wins.
// Neither check consults the transaction registry: the rival's state is
// read straight off the *txn.Record already stored in this row's entry.
func (ix *Index) AppendPending(id row.ID, v *row.Version, tx *txn.Record) error {
	e, _ := ix.entryFor(id, true)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil && e.pendingTx.ID != tx.ID {
		if ownsPendingSlot(e.pendingTx) {
			return mvccerr.New(mvccerr.KindWriteWriteConflict, "append_pending", "row already has a pending write from another active transaction")
		}
	}

	if len(e.history) > 0 {
		latest := e.history[len(e.history)-1]
		if latest.CommitTS > tx.BeginTS {
			return mvccerr.New(mvccerr.KindWriteWriteConflict, "append_pending", "row committed by another transaction after this snapshot began")
		}
	}

	e.pending = v
	e.pendingTx = tx
	return nil
}

// Publish marks tx's pending version for id committed at commitTS,
// stamping the prior visible history entry (if any) as deleted by tx,
// and moves the pending version into history. A no-op if id carries no
// pending version owned by tx (e.g. this row was never written by tx).
func (ix *Index) Publish(id row.ID, tx row.TxID, commitTS row.Timestamp) {
	e, ok := ix.entryFor(id, false)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending == nil || e.pendingTx.ID != tx {
		return
	}

	v := e.pending
	v.Publish(commitTS)

	if len(e.history) > 0 {
		prev := e.history[len(e.history)-1]
		// Committed versions of one row must carry strictly increasing
		// commit timestamps; a violation means the in-memory chain is
		// corrupt and nothing downstream can be trusted.
		if prev.CommitTS >= commitTS {
			panic(fmt.Sprintf("chain: version chain corruption on %s: publishing commit_ts %d at or before latest committed %d",
				id, commitTS, prev.CommitTS))
		}
		if prev.Deleter == 0 {
			prev.MarkDeletedBy(tx, commitTS)
		}
	}

	e.history = append(e.history, v)
	e.pending = nil
	e.pendingTx = nil
}

// Discard removes tx's pending version for id, if any, restoring the
// previously-visible version to current. A no-op if id carries no
// pending version owned by tx.
func (ix *Index) Discard(id row.ID, tx row.TxID) {
	e, ok := ix.entryFor(id, false)
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pending != nil && e.pendingTx.ID == tx {
		e.pending = nil
		e.pendingTx = nil
	}
}

// Prune drops history entries that were deleted before watermark and
// are no longer the newest entry in their chain, one row at a time
// under that row's own lock. Returns the number of versions collected.
// Rows whose chain becomes entirely empty (no history, no pending) are
// dropped from the index.
func (ix *Index) Prune(watermark row.Timestamp) int {
	ix.mu.Lock()
	keys := make([]string, 0, len(ix.rows))
	for k := range ix.rows {
		keys = append(keys, k)
	}
	ix.mu.Unlock()

	collected := 0
	for _, k := range keys {
		ix.mu.Lock()
		e, ok := ix.rows[k]
		ix.mu.Unlock()
		if !ok {
			continue
		}

		e.mu.Lock()
		kept := e.history[:0:0]
		for i, v := range e.history {
			isNewest := i == len(e.history)-1
			if !isNewest && v.Deleter != 0 && v.DeletedTS > 0 && v.DeletedTS < watermark {
				collected++
				continue
			}
			kept = append(kept, v)
		}
		e.history = kept
		empty := len(e.history) == 0 && e.pending == nil
		e.mu.Unlock()

		if empty {
			ix.mu.Lock()
			delete(ix.rows, k)
			ix.mu.Unlock()
		}
	}
	return collected
}

// Len reports how many distinct row identities currently have chain
// state (committed history or a pending write). Used by tests and
// metrics to watch for leaks.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return len(ix.rows)
}
