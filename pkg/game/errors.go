package game

import "fmt"

// FailureKind classifies a rejected player action.
type FailureKind string

const (
	// FailValidation marks a malformed or out-of-range request. Rejected
	// before any transaction opens.
	FailValidation FailureKind = "validation"

	// FailPrecondition marks a request that is well-formed but cannot be
	// satisfied by current state (insufficient credits, fuel, supply,
	// ship not docked, wrong slot type).
	FailPrecondition FailureKind = "precondition"

	// FailConflict marks a request whose in-transaction re-read disagreed
	// with the pre-check: another writer got there first. The caller may
	// retry with fresh state.
	FailConflict FailureKind = "conflict"

	// FailNotFound marks a reference to an entity that does not exist.
	FailNotFound FailureKind = "not_found"
)

// Error is a typed player-facing failure. Tick-pipeline errors are plain
// errors; only request-path rejections carry a kind.
type Error struct {
	Kind    FailureKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Validationf builds a validation failure.
func Validationf(code, format string, args ...any) *Error {
	return &Error{Kind: FailValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Preconditionf builds a precondition failure.
func Preconditionf(code, format string, args ...any) *Error {
	return &Error{Kind: FailPrecondition, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Conflictf builds a concurrency-conflict failure.
func Conflictf(code, format string, args ...any) *Error {
	return &Error{Kind: FailConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a missing-entity failure.
func NotFoundf(code, format string, args ...any) *Error {
	return &Error{Kind: FailNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the failure kind from an error, or empty for plain errors.
func KindOf(err error) FailureKind {
	if ge, ok := err.(*Error); ok {
		return ge.Kind
	}
	return ""
}
