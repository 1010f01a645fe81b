// Package row defines the immutable value types the rest of the MVCC
// core is built on: a row's address (RowID) and the versioned payload
// tied to it (Version).
//
// What: pure value types, constructed once and never mutated, except for
// the commit-timestamp stamp a Version receives when its creator commits
// and the single deleter-transaction stamp it receives when it is
// logically removed; both stamps are only ever applied by the chain
// package under its own per-row serialization.
// How: each Version carries its creator transaction, the commit
// timestamp it became visible at, and the transaction and timestamp
// that logically removed it. A row key is either a signed integer or
// an opaque byte string, the table's primary-key encoding.
// Why: keeping these types immutable and side-effect free lets every
// other package reason about them without holding any lock.
package row

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"
)

// TableID is a stable integer identifier assigned to a table.
type TableID uint32

// TxID is a monotonically increasing transaction identifier. Two
// distinct transactions never share a TxID.
type TxID uint64

// Timestamp is a monotonically increasing commit timestamp, strictly
// greater than any TxID observed before it was assigned.
type Timestamp uint64

// Key is the table's primary-key encoding: either a signed 64-bit
// integer or an opaque byte string. Exactly one of the two is set.
type Key struct {
	isInt bool
	intV  int64
	bytesV []byte
}

// IntKey builds a Key from a signed 64-bit integer.
func IntKey(v int64) Key { return Key{isInt: true, intV: v} }

// BytesKey builds a Key from an opaque byte string. The caller's slice
// is copied; Key never aliases caller-owned memory.
func BytesKey(b []byte) Key {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Key{bytesV: cp}
}

// UUIDKey builds a Key from a uuid.UUID's 16-byte encoding, for tables
// whose primary key is a UUID rather than an integer or free-form bytes.
func UUIDKey(u uuid.UUID) Key { return BytesKey(u[:]) }

// IsInt reports whether this Key holds an integer.
func (k Key) IsInt() bool { return k.isInt }

// Int returns the integer value. Only meaningful when IsInt() is true.
func (k Key) Int() int64 { return k.intV }

// Bytes returns the byte-string value. Only meaningful when IsInt() is false.
func (k Key) Bytes() []byte { return k.bytesV }

// Compare returns -1, 0, or 1 comparing k to other, establishing a total
// order: integer keys sort before byte-string keys, and within a kind
// comparison is numeric or lexicographic respectively.
func (k Key) Compare(other Key) int {
	if k.isInt != other.isInt {
		if k.isInt {
			return -1
		}
		return 1
	}
	if k.isInt {
		switch {
		case k.intV < other.intV:
			return -1
		case k.intV > other.intV:
			return 1
		default:
			return 0
		}
	}
	return bytes.Compare(k.bytesV, other.bytesV)
}

func (k Key) String() string {
	if k.isInt {
		return fmt.Sprintf("%d", k.intV)
	}
	return fmt.Sprintf("%x", k.bytesV)
}

// ID is the immutable address of a logical row: a table plus the row's
// primary-key encoding. Equality is structural; ordering is
// lexicographic over (TableID, Key).
type ID struct {
	Table TableID
	Key   Key
}

// Compare orders two IDs lexicographically over (Table, Key).
func (id ID) Compare(other ID) int {
	if id.Table != other.Table {
		if id.Table < other.Table {
			return -1
		}
		return 1
	}
	return id.Key.Compare(other.Key)
}

func (id ID) String() string {
	return fmt.Sprintf("%d:%s", id.Table, id.Key)
}

// Version is an immutable payload tied to an ID. Data is nil exactly
// when the version records a deletion (a tombstone). Deleter is the
// zero TxID until the version is logically removed, at which point the
// chain package stamps it exactly once.
type Version struct {
	RowID   ID
	Data    []byte // nil for a tombstone
	Creator TxID

	// CommitTS is the commit timestamp this version became visible at.
	// Zero while the version is still pending (creator not yet committed).
	CommitTS Timestamp

	// Deleter is the transaction that logically removed this version,
	// or zero if it has never been superseded. DeletedTS is its commit
	// timestamp, zero until that transaction commits.
	Deleter   TxID
	DeletedTS Timestamp
}

// NewVersion constructs a live (non-tombstone) pending Version owned by
// creator. data is copied; the caller's slice may be reused afterwards.
func NewVersion(id ID, data []byte, creator TxID) *Version {
	var cp []byte
	if data != nil {
		cp = make([]byte, len(data))
		copy(cp, data)
	}
	return &Version{RowID: id, Data: cp, Creator: creator}
}

// NewTombstone constructs a pending deletion marker owned by creator.
func NewTombstone(id ID, creator TxID) *Version {
	return &Version{RowID: id, Data: nil, Creator: creator}
}

// IsTombstone reports whether this version records a deletion.
func (v *Version) IsTombstone() bool { return v.Data == nil }

// DataCopy returns a defensive copy of Data, or nil for a tombstone.
// Callers that hand a Version's payload to code outside the chain
// package should use this instead of reading Data directly.
func (v *Version) DataCopy() []byte {
	if v.Data == nil {
		return nil
	}
	cp := make([]byte, len(v.Data))
	copy(cp, v.Data)
	return cp
}

// Publish stamps this version's commit timestamp. Only the chain
// package, under the per-row lock it holds while a version is the
// chain's pending head, may call this — exactly once, at the moment
// the owning transaction's commit is durable.
func (v *Version) Publish(ts Timestamp) {
	v.CommitTS = ts
}

// MarkDeletedBy stamps the transaction that logically superseded this
// version and its commit timestamp. Only the chain package may call
// this, exactly once per version, under the per-row lock.
func (v *Version) MarkDeletedBy(deleter TxID, ts Timestamp) {
	v.Deleter = deleter
	v.DeletedTS = ts
}

// MapKey returns a deterministic string encoding of id, suitable as a
// map key. table_id and the key kind are prefixed so no two distinct
// IDs can collide.
func (id ID) MapKey() string {
	if id.Key.isInt {
		return fmt.Sprintf("i:%d:%d", id.Table, id.Key.intV)
	}
	return fmt.Sprintf("b:%d:%x", id.Table, id.Key.bytesV)
}
