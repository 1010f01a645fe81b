// Package durability is the bridge the commit protocol calls to make a
// transaction's effects survive a crash.
//
// What: a Persister interface plus two concrete adapters — an
// in-memory stub for tests and embedding, and a simple append-only file
// log for real persistence.
// How: an interface value handed to the Store at construction, with
// FileBridge writing length-prefixed, CRC-checked records behind a
// magic header. Deliberately shallow: the MVCC core treats durability
// as an opaque collaborator, so FileBridge does not attempt page
// images, checkpointing, or recovery.
// Why: passing this as a capability (an interface value), not a
// module-level hook, is what keeps the MVCC core testable with a
// zero-dependency in-memory stub.
package durability

import (
	"context"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/tinymvcc/internal/row"
)

// WriteRecord is one row's effect within a commit's write-set envelope.
// Data is nil for a tombstone (a delete).
type WriteRecord struct {
	RowID row.ID
	Data  []byte
}

// Envelope is the ordered write-set passed to Persist. CommitTS and
// Records are a function of the commit inputs alone, never of timing or
// goroutine scheduling; ID is a fresh random value (see NewEnvelope), so
// two envelopes built from the same commit inputs are not identical.
type Envelope struct {
	ID       uuid.UUID
	CommitTS row.Timestamp
	Records  []WriteRecord
}

// Persister is the durability bridge's capability surface.
type Persister interface {
	// Persist durably records env. On a nil return, env's effects are
	// guaranteed to survive a crash; on a non-nil return, they are
	// guaranteed not to be recovered.
	Persist(ctx context.Context, env Envelope) error
}

// NewEnvelope builds an Envelope with a fresh random ID, used by the
// commit protocol so every persisted batch carries an identity
// independent of its contents (useful for idempotency keys in a real
// replicated bridge, even though this package's own adapters don't
// need one).
func NewEnvelope(commitTS row.Timestamp, records []WriteRecord) Envelope {
	return Envelope{ID: uuid.New(), CommitTS: commitTS, Records: records}
}
