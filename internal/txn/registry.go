// Package txn is the transaction registry: it allocates TxIDs and
// commit timestamps, holds each transaction's lifecycle state, and
// answers "what was committed, and when" (the visibility package reads
// the stamps on each version instead and never calls the registry).
//
// What: begin/commit/rollback state machine plus the monotonic counters
// that define commit order.
// How: a four-state machine (Active -> Committing -> Committed, or
// Active -> Aborted) over records held in a single map, with atomic
// counters for TxID and timestamp assignment. Serializable isolation is
// rejected explicitly at Begin rather than half-implemented.
// Why: a begin timestamp must be assigned under the same guard that
// decides the set of already-committed transactions, or a concurrent
// commit could slip in between "pick a timestamp" and "record which
// commits precede it" and corrupt visibility for every subsequent
// reader.
package txn

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SimonWaldherr/tinymvcc/internal/mvccerr"
	"github.com/SimonWaldherr/tinymvcc/internal/row"
)

// State is a transaction's place in the lifecycle state machine.
type State uint32

const (
	Active State = iota
	Committing
	Committed
	Aborted
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Committing:
		return "committing"
	case Committed:
		return "committed"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// IsolationLevel is carried on the transaction record for callers that
// request an isolation level; only SnapshotIsolation is implemented.
type IsolationLevel uint8

const (
	SnapshotIsolation IsolationLevel = iota
	Serializable
)

// ErrUnsupportedIsolation is returned by Begin when the caller asks for
// an isolation level the core does not implement. Deliberately not
// routed through mvccerr's closed Kind taxonomy: none of its six members
// describe "this request names a mode that was never implemented," and
// forcing it into KindTransactionNotActive would mislead a caller that
// switches on Kind() into thinking the transaction itself misbehaved.
var ErrUnsupportedIsolation = errors.New("mvcc: unsupported isolation level")

// Record is a transaction's registry entry. Fields that other packages
// read (ID, BeginTS, WriteSet) are safe to read without the registry's
// lock once the record itself has been obtained from Lookup/Begin.
// State transitions are atomic and safe to read from any goroutine
// without the registry's lock, since the chain package consults a
// rival's State while holding a row lock the registry never needs.
// CommitTS is only meaningful once State() == Committed, and is only
// ever written under Registry.mu before that transition is published.
type Record struct {
	ID        row.TxID
	state     atomic.Uint32
	BeginTS   row.Timestamp
	CommitTS  row.Timestamp // valid only once State() == Committed
	Isolation IsolationLevel

	// BeganAt is wall-clock time, used only by the reaper's abandonment
	// policy. MVCC visibility and conflict logic never consult it; those
	// are defined purely in terms of BeginTS/CommitTS.
	BeganAt time.Time

	// writeSet is the set of RowIDs this transaction has inserted,
	// updated, or deleted, in write order.
	writeMu  sync.Mutex
	writeSet []row.ID
}

// State returns the transaction's current lifecycle state. Safe to call
// without holding the registry's lock.
func (r *Record) State() State {
	return State(r.state.Load())
}

func (r *Record) setState(s State) {
	r.state.Store(uint32(s))
}

// RecordWrite appends rowID to the transaction's write set if it is not
// already recorded for that row (row.ID embeds a byte-string key, so
// membership is checked by its MapKey encoding rather than ==).
func (r *Record) RecordWrite(id row.ID) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	key := id.MapKey()
	for _, existing := range r.writeSet {
		if existing.MapKey() == key {
			return
		}
	}
	r.writeSet = append(r.writeSet, id)
}

// WriteSet returns a copy of the transaction's write set in write order.
func (r *Record) WriteSet() []row.ID {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	out := make([]row.ID, len(r.writeSet))
	copy(out, r.writeSet)
	return out
}

// Registry owns every transaction record for the lifetime of the store.
// Callers obtain *Record references through Begin/Lookup; the Registry
// never hands out a Record whose ID has been reused, since TxID is a
// monotonic counter.
type Registry struct {
	mu sync.RWMutex

	nextTxID atomic.Uint64
	nextTS   atomic.Uint64

	txs map[row.TxID]*Record

	// committedAt is the commit timestamp of every transaction that has
	// reached Committed, kept for CommitTS lookups and test inspection.
	// Entries for a given TxID are removed once Forget runs for it.
	committedAt map[row.TxID]row.Timestamp
}

// New creates an empty Registry. TxID and Timestamp counters both start
// at 1 so a zero value never collides with a real ID; row.Version uses
// zero to mean "absent creator/deleter".
func New() *Registry {
	r := &Registry{
		txs:         make(map[row.TxID]*Record),
		committedAt: make(map[row.TxID]row.Timestamp),
	}
	r.nextTxID.Store(0)
	r.nextTS.Store(0)
	return r
}

// Begin allocates a TxID and begin timestamp atomically and takes a
// snapshot boundary equal to the current timestamp counter: every
// transaction committed before this call returns is visible; nothing
// committed after is.
func (r *Registry) Begin(level IsolationLevel) (*Record, error) {
	if level == Serializable {
		return nil, ErrUnsupportedIsolation
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	txID := row.TxID(r.nextTxID.Add(1))
	beginTS := row.Timestamp(r.nextTS.Add(1))

	rec := &Record{
		ID:        txID,
		BeginTS:   beginTS,
		Isolation: level,
		BeganAt:   time.Now(),
	}
	r.txs[txID] = rec
	return rec, nil
}

// Lookup returns the record for txID, if the registry still holds one.
func (r *Registry) Lookup(id row.TxID) (*Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.txs[id]
	return rec, ok
}

// Commit drives rec through the entire Active -> Committing -> Committed
// transition (or Committing -> Aborted on failure) as one critical
// section guarded by the same lock Begin uses to take its snapshot.
//
// body receives the freshly assigned commit timestamp and is expected
// to persist the write-set and then publish it into the version chain;
// its return value decides whether the transaction lands Committed or
// Aborted. r.mu is held across body's call to the durability bridge so
// that no Begin may observe a half-published commit and no two commits
// may race for the same commit timestamp. body itself never needs r.mu
// or any chain row lock in the same order a rival holds them: the chain
// package resolves rival ownership off the *Record directly, never by
// calling back into the registry.
func (r *Registry) Commit(rec *Record, body func(commitTS row.Timestamp) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.State() != Active {
		return mvccerr.New(mvccerr.KindTransactionNotActive, "commit", "")
	}
	rec.setState(Committing)

	commitTS := row.Timestamp(r.nextTS.Add(1))
	if err := body(commitTS); err != nil {
		rec.setState(Aborted)
		return err
	}

	rec.CommitTS = commitTS
	rec.setState(Committed)
	r.committedAt[rec.ID] = commitTS
	return nil
}

// Rollback transitions rec to Aborted. Idempotent when rec is already
// Aborted; returns TransactionNotActive if rec has already reached
// Committed, since a committed transaction's effects cannot be undone
// by this path.
func (r *Registry) Rollback(rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch rec.State() {
	case Aborted:
		return nil
	case Committed:
		return mvccerr.New(mvccerr.KindTransactionNotActive, "rollback", "transaction already committed")
	default:
		rec.setState(Aborted)
		return nil
	}
}

// CommitTS returns the commit timestamp recorded for txID and whether
// that transaction has committed.
func (r *Registry) CommitTS(id row.TxID) (row.Timestamp, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ts, ok := r.committedAt[id]
	return ts, ok
}

// OldestActiveBeginTS returns the smallest BeginTS among transactions
// still Active or Committing, or the current timestamp counter if none
// are: the watermark below which committed-and-superseded versions can
// be pruned.
func (r *Registry) OldestActiveBeginTS() row.Timestamp {
	r.mu.RLock()
	defer r.mu.RUnlock()
	watermark := row.Timestamp(r.nextTS.Load())
	for _, rec := range r.txs {
		if s := rec.State(); s == Active || s == Committing {
			if rec.BeginTS < watermark {
				watermark = rec.BeginTS
			}
		}
	}
	return watermark
}

// ActiveOlderThan returns the IDs of every transaction that has been
// Active for at least maxAge of wall-clock time, for use by a reaper
// that rolls back abandoned transactions. Abandonment is necessarily a
// wall-clock policy: the BeginTS/TxID counters carry no notion of
// elapsed time.
func (r *Registry) ActiveOlderThan(maxAge time.Duration) []row.TxID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cutoff := time.Now().Add(-maxAge)
	var out []row.TxID
	for id, rec := range r.txs {
		if rec.State() == Active && rec.BeganAt.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out
}

// TerminalBefore returns the IDs of every transaction that has reached a
// terminal state and is safe for the reaper to Forget once chain history
// has been pruned past watermark: every Aborted transaction (its pending
// versions were discarded before ever entering a chain's history, so no
// live chain state can still reference it) and every Committed
// transaction whose CommitTS is strictly before watermark (its versions,
// if superseded, have already been eligible for Prune to collect).
func (r *Registry) TerminalBefore(watermark row.Timestamp) []row.TxID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []row.TxID
	for id, rec := range r.txs {
		switch rec.State() {
		case Aborted:
			out = append(out, id)
		case Committed:
			if rec.CommitTS < watermark {
				out = append(out, id)
			}
		}
	}
	return out
}

// Forget drops a terminal transaction's record and commit-timestamp
// entry once its write set is no longer needed by any live chain or
// snapshot. Only ever called by the reaper, driven by TerminalBefore,
// after Prune has run past the transaction's commit/abort point.
func (r *Registry) Forget(id row.TxID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.txs, id)
	delete(r.committedAt, id)
}
