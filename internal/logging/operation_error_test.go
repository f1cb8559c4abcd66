package logging

import (
	"errors"
	"testing"
)

func TestNewOperationErrorNilPassthrough(t *testing.T) {
	if err := NewOperationError("op", "req", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationErrorFormatting(t *testing.T) {
	base := errors.New("boom")

	withID := NewOperationError("faceapi.register", "req-1", base)
	if got, want := withID.Error(), "faceapi.register (request_id=req-1): boom"; got != want {
		t.Fatalf("unexpected message %q, want %q", got, want)
	}

	withoutID := NewOperationError("faceapi.register", "", base)
	if got, want := withoutID.Error(), "faceapi.register: boom"; got != want {
		t.Fatalf("unexpected message %q, want %q", got, want)
	}

	if !errors.Is(withID, base) {
		t.Fatal("expected wrapped error to match base error")
	}
}

func TestNewOperationErrorDoesNotDoubleWrapSameOperation(t *testing.T) {
	first := NewOperationError("cache.get", "req", errors.New("boom"))
	second := NewOperationError("cache.get", "req", first)
	if first != second {
		t.Fatal("expected the same error to be returned")
	}
}

func TestOperationOfReturnsInnermost(t *testing.T) {
	inner := NewOperationError("faceapi.compare", "req", errors.New("timeout"))
	outer := NewOperationError("usecase.compare_faces", "req", inner)

	op, ok := OperationOf(outer)
	if !ok {
		t.Fatal("expected an operation")
	}
	if op != "faceapi.compare" {
		t.Fatalf("unexpected operation %q", op)
	}

	if _, ok := OperationOf(errors.New("plain")); ok {
		t.Fatal("expected no operation on a plain error")
	}
}
