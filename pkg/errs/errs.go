// Package errs defines the closed set of error categories the gateway's
// core surfaces, each carrying the HTTP-mapping hint the (out-of-scope)
// HTTP layer would consult (SPEC_FULL.md §7, AMBIENT STACK).
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes an error into one of the core's behavioral buckets.
type Kind string

const (
	// Validation covers missing/invalid arguments, unknown tool names, and
	// policy denial surfaced before or in place of execution.
	Validation Kind = "validation"

	// Authorization covers invalid bearer tokens and quota exhaustion.
	Authorization Kind = "authorization"

	// Upstream covers provider network errors, non-2xx responses, and
	// response parse failures.
	Upstream Kind = "upstream"

	// Cancelled covers cooperative stop of a run, task, or node.
	Cancelled Kind = "cancelled"

	// ToolExecution covers a local or remote tool returning a non-success
	// result; the agentic loop keeps running so the model can recover.
	ToolExecution Kind = "tool_execution"

	// Persistence covers storage/IO failures that must degrade gracefully
	// rather than propagate to a caller mid-turn.
	Persistence Kind = "persistence"

	// PolicyRefusal covers a safety gate rejecting an action before any
	// side effect (exec denylist, archive path-traversal, size limits).
	PolicyRefusal Kind = "policy_refusal"
)

// httpStatus maps each Kind to the status code the HTTP layer would use.
// Validation and PolicyRefusal share 400 except where PolicyRefusal is
// specifically a size violation (413), which callers select via WithStatus.
var httpStatus = map[Kind]int{
	Validation:    400,
	Authorization: 401,
	Upstream:      502,
	Cancelled:     0, // never surfaced as an HTTP error from the turn endpoint
	ToolExecution: 200,
	Persistence:   0, // never propagated to callers mid-turn
	PolicyRefusal: 400,
}

// Error wraps an underlying cause with a Kind and an HTTP-mapping hint.
type Error struct {
	Kind   Kind
	Status int
	msg    string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a Kind-categorized error with the Kind's default HTTP status.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Status: httpStatus[kind], msg: msg}
}

// Wrap categorizes cause under kind, preserving it for errors.Is/As.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Status: httpStatus[kind], msg: msg, cause: cause}
}

// WithStatus overrides the default HTTP status for this error instance
// (e.g. PolicyRefusal size violations map to 413 instead of 400).
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and reports whether one was found.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is categorized as kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
