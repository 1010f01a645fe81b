package durability

import (
	"context"
	"sync"
)

// MemoryBridge is a Persister that keeps every committed envelope in
// memory and never fails. It is the default bridge for an embedded
// Store with no DurabilityPath configured, and the bridge the Store
// tests use unless they exercise the file bridge or a failing one.
type MemoryBridge struct {
	mu        sync.Mutex
	envelopes []Envelope
}

// NewMemoryBridge returns an empty MemoryBridge.
func NewMemoryBridge() *MemoryBridge {
	return &MemoryBridge{}
}

// Persist records env and always succeeds.
func (b *MemoryBridge) Persist(ctx context.Context, env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envelopes = append(b.envelopes, env)
	return nil
}

// Envelopes returns a copy of every envelope persisted so far, in
// commit order. Used by tests to assert on what a commit actually wrote.
func (b *MemoryBridge) Envelopes() []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Envelope, len(b.envelopes))
	copy(out, b.envelopes)
	return out
}

// FailingBridge is a Persister stub that always fails, used to test
// that a persist failure hard-aborts the committing transaction.
type FailingBridge struct {
	Err error
}

// Persist never succeeds; it returns the configured error (or a
// default if none was set).
func (b *FailingBridge) Persist(ctx context.Context, env Envelope) error {
	if b.Err != nil {
		return b.Err
	}
	return errDurabilityStub
}

var errDurabilityStub = &stubError{"durability bridge rejected commit"}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }
