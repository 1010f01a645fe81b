// Package benchmarks holds throughput and contention benchmarks for the
// MVCC core, kept in their own package apart from the root package's
// tests; `go test` runs them only when -bench is given.
package benchmarks

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"testing"

	mvcc "github.com/SimonWaldherr/tinymvcc"
)

func newStore(b *testing.B) *mvcc.Store {
	b.Helper()
	s, err := mvcc.New(mvcc.StoreConfig{})
	if err != nil {
		b.Fatalf("mvcc.New: %v", err)
	}
	b.Cleanup(func() { s.Close() })
	return s
}

// BenchmarkInsertSequential measures single-writer insert throughput,
// one row per transaction, into distinct row IDs.
func BenchmarkInsertSequential(b *testing.B) {
	s := newStore(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tx, err := s.Begin()
		if err != nil {
			b.Fatalf("Begin: %v", err)
		}
		if err := tx.Insert(1, mvcc.IntKey(int64(i)), []byte("payload")); err != nil {
			b.Fatalf("Insert: %v", err)
		}
		if err := tx.Commit(context.Background()); err != nil {
			b.Fatalf("Commit: %v", err)
		}
	}
}

// BenchmarkUpdateDisjointRows measures concurrent writer throughput when
// every goroutine owns a disjoint slice of row IDs: different rows never
// share a lock, so this is the no-contention ceiling.
func BenchmarkUpdateDisjointRows(b *testing.B) {
	s := newStore(b)

	seed, err := s.Begin()
	if err != nil {
		b.Fatalf("Begin: %v", err)
	}
	const rows = 1024
	for i := 0; i < rows; i++ {
		if err := seed.Insert(1, mvcc.IntKey(int64(i)), []byte("0")); err != nil {
			b.Fatalf("seed Insert: %v", err)
		}
	}
	if err := seed.Commit(context.Background()); err != nil {
		b.Fatalf("seed Commit: %v", err)
	}

	// Each RunParallel goroutine claims a worker number and only updates
	// its own contiguous slice of the seeded keys.
	perWorker := rows / runtime.GOMAXPROCS(0)
	if perWorker == 0 {
		perWorker = 1
	}
	var nextWorker atomic.Int64

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		base := int(nextWorker.Add(1)-1) * perWorker
		i := 0
		for pb.Next() {
			tx, err := s.Begin()
			if err != nil {
				b.Fatalf("Begin: %v", err)
			}
			key := mvcc.IntKey(int64((base + i%perWorker) % rows))
			if err := tx.Update(1, key, []byte(fmt.Sprintf("%d", i))); err != nil {
				b.Fatalf("Update: %v", err)
			}
			if err := tx.Commit(context.Background()); err != nil {
				b.Fatalf("Commit: %v", err)
			}
			i++
		}
	})
}

// BenchmarkHotRowContention measures how quickly eager conflict detection
// rejects the losing side when every writer targets the same row.
func BenchmarkHotRowContention(b *testing.B) {
	s := newStore(b)

	seed, err := s.Begin()
	if err != nil {
		b.Fatalf("Begin: %v", err)
	}
	if err := seed.Insert(1, mvcc.IntKey(1), []byte("0")); err != nil {
		b.Fatalf("seed Insert: %v", err)
	}
	if err := seed.Commit(context.Background()); err != nil {
		b.Fatalf("seed Commit: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tx, err := s.Begin()
			if err != nil {
				b.Fatalf("Begin: %v", err)
			}
			if err := tx.Update(1, mvcc.IntKey(1), []byte("x")); err != nil {
				tx.Rollback()
				continue
			}
			if err := tx.Commit(context.Background()); err != nil {
				continue
			}
		}
	})
}

// BenchmarkGetSnapshot measures read throughput against a single
// committed row under concurrent readers, none of which ever write.
func BenchmarkGetSnapshot(b *testing.B) {
	s := newStore(b)

	seed, err := s.Begin()
	if err != nil {
		b.Fatalf("Begin: %v", err)
	}
	if err := seed.Insert(1, mvcc.IntKey(1), []byte("value")); err != nil {
		b.Fatalf("seed Insert: %v", err)
	}
	if err := seed.Commit(context.Background()); err != nil {
		b.Fatalf("seed Commit: %v", err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			tx, err := s.Begin()
			if err != nil {
				b.Fatalf("Begin: %v", err)
			}
			if _, ok := tx.Get(1, mvcc.IntKey(1)); !ok {
				b.Fatal("expected seeded row to be visible")
			}
			tx.Rollback()
		}
	})
}
