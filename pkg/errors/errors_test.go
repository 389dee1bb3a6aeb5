package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := New(ErrCodeInvalidAddress, "address %q lacks a /prefix", "10.0.0.1")
	want := `INVALID_ADDRESS: address "10.0.0.1" lacks a /prefix`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("permission denied")
	err := Wrap(ErrCodeEmitFailed, cause, "writing %s", "r1.startup")

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if !strings.Contains(err.Error(), "permission denied") {
		t.Errorf("Error() = %q, want cause included", err.Error())
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := New(ErrCodeAmbiguousLocality, "group 20 has no configured area")

	if !Is(err, ErrCodeAmbiguousLocality) {
		t.Error("Is(err, ErrCodeAmbiguousLocality) = false, want true")
	}
	if Is(err, ErrCodeInvalidAddress) {
		t.Error("Is(err, ErrCodeInvalidAddress) = true, want false")
	}
	if Is(stderrors.New("plain"), ErrCodeInternal) {
		t.Error("Is(plain error) = true, want false")
	}
}

func TestIsUnwrapsChain(t *testing.T) {
	inner := New(ErrCodeInvalidAddress, "bad prefix")
	outer := Wrap(ErrCodeInvalidTopology, inner, "device r1")

	// As finds the outermost *Error first.
	if got := GetCode(outer); got != ErrCodeInvalidTopology {
		t.Errorf("GetCode() = %q, want %q", got, ErrCodeInvalidTopology)
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeUnknownDevice, "no device named r9")
	if got := UserMessage(err); got != "no device named r9" {
		t.Errorf("UserMessage() = %q, want message without code", got)
	}
	plain := stderrors.New("boom")
	if got := UserMessage(plain); got != "boom" {
		t.Errorf("UserMessage(plain) = %q, want %q", got, "boom")
	}
}
