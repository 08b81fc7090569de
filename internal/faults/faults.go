// Package faults defines the typed error taxonomy shared by the clinical
// lifecycle components. Callers branch on the code, never on message text.
package faults

import (
	"errors"
	"fmt"
)

// Code classifies a domain failure for the caller-facing contract.
type Code string

const (
	// CodeValidation marks malformed or missing input.
	CodeValidation Code = "validation"
	// CodeAuthorization marks an actor lacking the capability for a transition.
	CodeAuthorization Code = "authorization"
	// CodeNotFound marks an id that does not resolve.
	CodeNotFound Code = "not_found"
	// CodeConflict marks a failed state-machine guard, a lost concurrent
	// race, an unavailable slot, or a settled bill.
	CodeConflict Code = "conflict"
	// CodeDependency marks an unavailable store or downstream service; the
	// only retryable code.
	CodeDependency Code = "dependency"
)

// Fault is a classified domain error. Message always names the violated
// invariant so it can be surfaced to users verbatim.
type Fault struct {
	Code    Code
	Message string
	Err     error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

func (f *Fault) Unwrap() error { return f.Err }

// Is lets errors.Is match two faults by code.
func (f *Fault) Is(target error) bool {
	var other *Fault
	if errors.As(target, &other) {
		return f.Code == other.Code
	}
	return false
}

// Validation reports malformed input.
func Validation(format string, args ...any) *Fault {
	return &Fault{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Authorization reports a capability failure.
func Authorization(format string, args ...any) *Fault {
	return &Fault{Code: CodeAuthorization, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an unresolvable id.
func NotFound(format string, args ...any) *Fault {
	return &Fault{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports a failed guard or lost race.
func Conflict(format string, args ...any) *Fault {
	return &Fault{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Dependency wraps a store or service failure; retryable.
func Dependency(err error, format string, args ...any) *Fault {
	return &Fault{Code: CodeDependency, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the fault code, defaulting to CodeDependency for
// unclassified errors so unknown infrastructure failures stay retryable.
func CodeOf(err error) Code {
	var f *Fault
	if errors.As(err, &f) {
		return f.Code
	}
	return CodeDependency
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var f *Fault
	return errors.As(err, &f) && f.Code == code
}

// Retryable reports whether the orchestration layer may retry err.
func Retryable(err error) bool {
	return IsCode(err, CodeDependency)
}
