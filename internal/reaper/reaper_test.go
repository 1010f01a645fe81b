package reaper

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/SimonWaldherr/tinymvcc/internal/chain"
	"github.com/SimonWaldherr/tinymvcc/internal/row"
	"github.com/SimonWaldherr/tinymvcc/internal/txn"
)

func discardingLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestSweepRollsBackAbandonedTransactions(t *testing.T) {
	registry := txn.New()
	idx := chain.New()

	rec, err := registry.Begin(txn.SnapshotIsolation)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	rec.BeganAt = time.Now().Add(-time.Hour)

	var rolledBack []row.TxID
	rollback := func(id row.TxID) error {
		rolledBack = append(rolledBack, id)
		r, ok := registry.Lookup(id)
		if !ok {
			return nil
		}
		return registry.Rollback(r)
	}

	rp := New(registry, idx, rollback, Config{MaxAge: time.Minute, Logger: discardingLogger()})
	rp.Sweep(context.Background())

	if len(rolledBack) != 1 || rolledBack[0] != rec.ID {
		t.Fatalf("rolledBack = %v, want [%d]", rolledBack, rec.ID)
	}
	if rec.State() != txn.Aborted {
		t.Errorf("State = %v, want Aborted", rec.State())
	}
}

func TestSweepLeavesFreshTransactionsAlone(t *testing.T) {
	registry := txn.New()
	idx := chain.New()

	rec, err := registry.Begin(txn.SnapshotIsolation)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	called := false
	rollback := func(row.TxID) error { called = true; return nil }

	rp := New(registry, idx, rollback, Config{MaxAge: time.Hour, Logger: discardingLogger()})
	rp.Sweep(context.Background())

	if called {
		t.Error("Sweep rolled back a transaction that has not exceeded MaxAge")
	}
	if rec.State() != txn.Active {
		t.Errorf("State = %v, want Active", rec.State())
	}
}

func TestSweepWithZeroMaxAgeSkipsRollback(t *testing.T) {
	registry := txn.New()
	idx := chain.New()

	rec, err := registry.Begin(txn.SnapshotIsolation)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	rec.BeganAt = time.Now().Add(-24 * time.Hour)

	called := false
	rollback := func(row.TxID) error { called = true; return nil }

	rp := New(registry, idx, rollback, Config{MaxAge: 0, Logger: discardingLogger()})
	rp.Sweep(context.Background())

	if called {
		t.Error("Sweep with MaxAge 0 must never roll back transactions")
	}
}

func TestSweepPrunesHistoryBehindWatermark(t *testing.T) {
	registry := txn.New()
	idx := chain.New()
	id := row.ID{Table: 1, Key: row.IntKey(1)}

	w1, _ := registry.Begin(txn.SnapshotIsolation)
	idx.AppendPending(id, row.NewVersion(id, []byte("v1"), w1.ID), w1)
	var ts1 row.Timestamp
	registry.Commit(w1, func(commitTS row.Timestamp) error { ts1 = commitTS; return nil })
	idx.Publish(id, w1.ID, ts1)

	w2, _ := registry.Begin(txn.SnapshotIsolation)
	idx.AppendPending(id, row.NewVersion(id, []byte("v2"), w2.ID), w2)
	var ts2 row.Timestamp
	registry.Commit(w2, func(commitTS row.Timestamp) error { ts2 = commitTS; return nil })
	idx.Publish(id, w2.ID, ts2)

	rp := New(registry, idx, func(row.TxID) error { return nil }, Config{Logger: discardingLogger()})
	rp.Sweep(context.Background())

	if idx.Len() != 1 {
		t.Errorf("Len() = %d after pruning with no active readers, want 1", idx.Len())
	}
}

func TestStartStop(t *testing.T) {
	registry := txn.New()
	idx := chain.New()
	rp := New(registry, idx, func(row.TxID) error { return nil }, Config{Schedule: "@every 1h", Logger: discardingLogger()})
	if err := rp.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	rp.Stop()
}
