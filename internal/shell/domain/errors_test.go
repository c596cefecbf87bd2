package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestPermanentMarksError(t *testing.T) {
	cause := errors.New("bad argv")

	err := Permanent(cause)
	if !IsPermanent(err) {
		t.Fatal("expected permanent error")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to survive unwrapping")
	}
	if err.Error() != "bad argv" {
		t.Fatalf("error text = %q, want %q", err.Error(), "bad argv")
	}
}

func TestPermanentNil(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
}

func TestIsPermanentWrapped(t *testing.T) {
	err := fmt.Errorf("outer: %w", Permanent(errors.New("inner")))
	if !IsPermanent(err) {
		t.Fatal("expected wrapped permanent error to be detected")
	}
	if IsPermanent(errors.New("plain")) {
		t.Fatal("plain error should not be permanent")
	}
}
