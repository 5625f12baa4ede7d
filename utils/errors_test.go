package utils

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := NewError(KindUpsertFailed, "index", "batch failed", errors.New("disk full"))
	if KindOf(err) != KindUpsertFailed {
		t.Fatalf("KindOf = %s, want %s", KindOf(err), KindUpsertFailed)
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if KindOf(wrapped) != KindUpsertFailed {
		t.Fatalf("wrapped KindOf = %s, want %s", KindOf(wrapped), KindUpsertFailed)
	}

	if KindOf(errors.New("plain")) != KindInvariantViolation {
		t.Fatal("plain error should map to invariant_violation")
	}
}

func TestIsKind(t *testing.T) {
	err := NewError(KindCanceled, "llm", "request canceled", nil)
	if !IsKind(err, KindCanceled) {
		t.Fatal("IsKind should match the error's kind")
	}
	if IsKind(err, KindModelTimeout) {
		t.Fatal("IsKind should not match a different kind")
	}
}

func TestStatusForKind(t *testing.T) {
	cases := []struct {
		kind ErrorKind
		want int
	}{
		{KindUnsupportedFormat, http.StatusBadRequest},
		{KindPayloadTooLarge, http.StatusRequestEntityTooLarge},
		{KindUpsertFailed, http.StatusInternalServerError},
		{KindModelUnavailable, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusForKind(tc.kind); got != tc.want {
			t.Errorf("StatusForKind(%s) = %d, want %d", tc.kind, got, tc.want)
		}
	}
}
