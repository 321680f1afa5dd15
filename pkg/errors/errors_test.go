package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestNewError(t *testing.T) {
	err := New(ErrCodeNotUniqueNode, "name %q matches %d nodes", "x", 2)

	if err.Code != ErrCodeNotUniqueNode {
		t.Errorf("Code = %s, want NOT_UNIQUE_NODE", err.Code)
	}
	if err.Message != `name "x" matches 2 nodes` {
		t.Errorf("unexpected message: %s", err.Message)
	}
	if err.Cause != nil {
		t.Error("New should not set a cause")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(ErrCodeStorage, cause, "store %s", "a.b.c")

	if !stderrors.Is(err, cause) {
		t.Error("wrapped error should match cause via errors.Is")
	}
	if GetCode(err) != ErrCodeStorage {
		t.Errorf("GetCode = %s, want STORAGE_ERROR", GetCode(err))
	}
}

func TestIs(t *testing.T) {
	err := New(ErrCodeVersionMismatch, "stored 1.0.0, expected 2.0.0")

	if !Is(err, ErrCodeVersionMismatch) {
		t.Error("Is should match the error's own code")
	}
	if Is(err, ErrCodeNotFound) {
		t.Error("Is should not match a different code")
	}

	// Is should look through wrapping layers.
	wrapped := fmt.Errorf("outer: %w", err)
	if !Is(wrapped, ErrCodeVersionMismatch) {
		t.Error("Is should unwrap to find the code")
	}

	if Is(stderrors.New("plain"), ErrCodeInternal) {
		t.Error("Is should be false for non-structured errors")
	}
}

func TestUserMessage(t *testing.T) {
	err := New(ErrCodeParameterLocked, "parameter x is locked")
	if UserMessage(err) != "parameter x is locked" {
		t.Errorf("UserMessage = %q", UserMessage(err))
	}

	plain := stderrors.New("boom")
	if UserMessage(plain) != "boom" {
		t.Errorf("UserMessage for plain error = %q", UserMessage(plain))
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"x", "run_00000003", "group1", "a-b", "Results"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "a.b", "_meta", "with space", "a/b", "a\\b"}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}

func TestValidatePath(t *testing.T) {
	valid := []string{"parameters.x", "results.$.sub", "a..b", "x"}
	for _, p := range valid {
		if err := ValidatePath(p); err != nil {
			t.Errorf("ValidatePath(%q) = %v, want nil", p, err)
		}
	}

	invalid := []string{"", "a._hidden", "a.b c"}
	for _, p := range invalid {
		if err := ValidatePath(p); err == nil {
			t.Errorf("ValidatePath(%q) = nil, want error", p)
		}
	}
}
