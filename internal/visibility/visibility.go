// Package visibility decides which version (if any) of a row a given
// transaction's snapshot can see.
//
// What: the snapshot visibility rule — self-write-wins,
// committed-before-snapshot, not-deleted-before-snapshot.
// How: reads a version's own CommitTS/DeletedTS stamps directly
// (row.Version.Publish/MarkDeletedBy), the way a tuple's hint bits let
// a reader resolve its status without consulting the commit log again.
// Why: visibility must be a pure function of (transaction, version)
// with no side effects and no dependency on any other package's lock;
// once a transaction's begin timestamp is fixed, the answer never
// moves, no matter what commits happen around it.
package visibility

import (
	"github.com/SimonWaldherr/tinymvcc/internal/row"
)

// Visible reports whether version v is visible to a transaction with the
// given ID and begin timestamp:
//
//  1. v's creator is the transaction itself, or a transaction whose
//     CommitTS is already stamped at or before beginTS.
//  2. (Handled by the caller: the chain walk stops at the first version
//     satisfying 1 and 3 in chain order, so a transaction never sees a
//     version older than its own latest write to the same row.)
//  3. v is not deleted by the transaction itself, or by a transaction
//     whose DeletedTS is already stamped at or before beginTS.
func Visible(txID row.TxID, beginTS row.Timestamp, v *row.Version) bool {
	if !createdBeforeOrBy(txID, beginTS, v) {
		return false
	}
	return !deletedBeforeOrBy(txID, beginTS, v)
}

func createdBeforeOrBy(txID row.TxID, beginTS row.Timestamp, v *row.Version) bool {
	if v.Creator == txID {
		return true
	}
	return v.CommitTS != 0 && v.CommitTS <= beginTS
}

func deletedBeforeOrBy(txID row.TxID, beginTS row.Timestamp, v *row.Version) bool {
	if v.Deleter == 0 {
		return false
	}
	if v.Deleter == txID {
		return true
	}
	return v.DeletedTS != 0 && v.DeletedTS <= beginTS
}
