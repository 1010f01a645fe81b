// Package mvccerr defines the closed error taxonomy surfaced by the MVCC
// core's read, write, and commit paths.
//
// What: a fixed set of error Kinds plus a wrapper type that carries one.
// How: sentinel errors for errors.Is, a Kind() accessor for callers who
// want to switch on the taxonomy instead of comparing error values.
// Why: the write/commit paths never retry or wait internally; the
// caller decides policy, so the error returned must name exactly which
// of the closed set of things went wrong.
package mvccerr

import (
	"errors"
	"fmt"
)

// Kind enumerates the closed taxonomy of errors the MVCC core can return.
type Kind uint8

const (
	// KindWriteWriteConflict: a concurrent write clash. Rollback and retry.
	KindWriteWriteConflict Kind = iota
	// KindRowNotFound: the target row is missing from the caller's snapshot.
	KindRowNotFound
	// KindDuplicateKey: an insert collided with a version visible to the caller.
	KindDuplicateKey
	// KindTransactionNotActive: use of a transaction after commit/abort.
	KindTransactionNotActive
	// KindDurabilityError: the persist step failed; the transaction auto-aborts.
	KindDurabilityError
	// KindCorruption: an internal invariant was violated. Fatal.
	KindCorruption
)

func (k Kind) String() string {
	switch k {
	case KindWriteWriteConflict:
		return "write_write_conflict"
	case KindRowNotFound:
		return "row_not_found"
	case KindDuplicateKey:
		return "duplicate_key"
	case KindTransactionNotActive:
		return "transaction_not_active"
	case KindDurabilityError:
		return "durability_error"
	case KindCorruption:
		return "corruption"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Sentinel errors usable with errors.Is. Each wraps to the same Kind as
// the sentinel name implies; New wraps a sentinel with extra context
// while preserving errors.Is compatibility.
var (
	ErrWriteWriteConflict   = errors.New("write-write conflict")
	ErrRowNotFound          = errors.New("row not found")
	ErrDuplicateKey         = errors.New("duplicate key")
	ErrTransactionNotActive = errors.New("transaction not active")
	ErrDurabilityError      = errors.New("durability bridge failed")
	ErrCorruption           = errors.New("mvcc invariant violated")
)

var sentinelByKind = map[Kind]error{
	KindWriteWriteConflict:   ErrWriteWriteConflict,
	KindRowNotFound:          ErrRowNotFound,
	KindDuplicateKey:         ErrDuplicateKey,
	KindTransactionNotActive: ErrTransactionNotActive,
	KindDurabilityError:      ErrDurabilityError,
	KindCorruption:           ErrCorruption,
}

// Error wraps a Kind with operation-specific context.
type Error struct {
	kind Kind
	op   string
	err  error
}

// New builds an *Error for kind, annotated with op (e.g. "update(row=42)").
func New(kind Kind, op string, detail string) *Error {
	sentinel := sentinelByKind[kind]
	var err error
	if detail == "" {
		err = sentinel
	} else {
		err = fmt.Errorf("%s: %w", detail, sentinel)
	}
	return &Error{kind: kind, op: op, err: err}
}

// Wrap builds an *Error of the given kind around an underlying error
// returned by an external collaborator, e.g. the durability bridge.
func Wrap(kind Kind, op string, cause error) *Error {
	sentinel := sentinelByKind[kind]
	return &Error{kind: kind, op: op, err: fmt.Errorf("%w: %w", sentinel, cause)}
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %s", e.op, e.err.Error())
}

func (e *Error) Unwrap() error { return e.err }

// Kind returns the closed taxonomy entry this error belongs to.
func (e *Error) Kind() Kind { return e.kind }

// KindOf extracts the Kind from err, if err is (or wraps) an *Error.
// Returns false if err does not carry a recognized Kind.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.kind, true
	}
	return 0, false
}

// Is lets errors.Is match an *Error against its sentinel.
func (e *Error) Is(target error) bool {
	return errors.Is(e.err, target)
}
