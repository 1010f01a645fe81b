package mvccerr

import (
	"errors"
	"testing"
)

func TestNewIsMatchedBySentinel(t *testing.T) {
	cases := []struct {
		kind Kind
		want error
	}{
		{KindWriteWriteConflict, ErrWriteWriteConflict},
		{KindRowNotFound, ErrRowNotFound},
		{KindDuplicateKey, ErrDuplicateKey},
		{KindTransactionNotActive, ErrTransactionNotActive},
		{KindDurabilityError, ErrDurabilityError},
		{KindCorruption, ErrCorruption},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			err := New(tc.kind, "op", "")
			if !errors.Is(err, tc.want) {
				t.Errorf("errors.Is(%v, %v) = false, want true", err, tc.want)
			}
			if kind, ok := KindOf(err); !ok || kind != tc.kind {
				t.Errorf("KindOf() = (%v, %v), want (%v, true)", kind, ok, tc.kind)
			}
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindDurabilityError, "commit", cause)
	if !errors.Is(err, ErrDurabilityError) {
		t.Error("Wrap did not preserve the sentinel for errors.Is")
	}
	if !errors.Is(err, cause) {
		t.Error("Wrap did not preserve the underlying cause for errors.Is")
	}
}

func TestKindOfRejectsForeignErrors(t *testing.T) {
	if _, ok := KindOf(errors.New("not one of ours")); ok {
		t.Error("KindOf should report false for an error outside the taxonomy")
	}
}

func TestNewWithDetailIncludesContext(t *testing.T) {
	err := New(KindRowNotFound, "get", "table=1 key=42")
	if err.Error() == "" {
		t.Fatal("Error() returned empty string")
	}
	if !errors.Is(err, ErrRowNotFound) {
		t.Error("detail-qualified New lost its sentinel match")
	}
}
