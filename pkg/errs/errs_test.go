package errs

import (
	"errors"
	"testing"
)

func TestNewSetsDefaultStatus(t *testing.T) {
	err := New(Validation, "missing field")
	if err.Status != 400 {
		t.Errorf("expected status 400, got %d", err.Status)
	}
	if err.Kind != Validation {
		t.Errorf("expected kind %q, got %q", Validation, err.Kind)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Upstream, cause, "provider call failed")

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if err.Status != 502 {
		t.Errorf("expected status 502, got %d", err.Status)
	}
}

func TestWithStatusOverride(t *testing.T) {
	err := New(PolicyRefusal, "archive exceeds max size").WithStatus(413)
	if err.Status != 413 {
		t.Errorf("expected overridden status 413, got %d", err.Status)
	}
}

func TestKindOf(t *testing.T) {
	wrapped := Wrap(ToolExecution, errors.New("boom"), "tool failed")
	var outer error = wrapped

	kind, ok := KindOf(outer)
	if !ok {
		t.Fatal("expected KindOf to find a Kind")
	}
	if kind != ToolExecution {
		t.Errorf("expected %q, got %q", ToolExecution, kind)
	}

	_, ok = KindOf(errors.New("plain"))
	if ok {
		t.Error("expected KindOf to report false for a non-*Error")
	}
}

func TestIs(t *testing.T) {
	err := New(Cancelled, "stopped")
	if !Is(err, Cancelled) {
		t.Error("expected Is(err, Cancelled) to be true")
	}
	if Is(err, Upstream) {
		t.Error("expected Is(err, Upstream) to be false")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(Persistence, errors.New("disk full"), "write failed")
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty error string")
	}
	if !errors.Is(err, err) {
		t.Error("expected error to equal itself via errors.Is")
	}
}
