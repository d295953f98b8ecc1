// Package codes defines the structured result codes the classifier's write
// path returns, and the error type that carries them.
package codes

import "fmt"

// Code identifies the disposition of a write-path operation. The
// classification (read) path never returns a Code: it is total and always
// reports a result with Matched=false when nothing applies.
type Code uint8

const (
	OK Code = iota
	DuplicateID
	NotFound
	InvalidRule
	Conflict
	AllocatorExhausted
	InternalInconsistency
	SaturatedPrefilter
)

func (c Code) String() string {
	switch c {
	case OK:
		return "ok"
	case DuplicateID:
		return "duplicate_id"
	case NotFound:
		return "not_found"
	case InvalidRule:
		return "invalid_rule"
	case Conflict:
		return "conflict"
	case AllocatorExhausted:
		return "allocator_exhausted"
	case InternalInconsistency:
		return "internal_inconsistency"
	case SaturatedPrefilter:
		return "saturated_prefilter"
	default:
		return "unknown"
	}
}

// Error is the structured error returned by write-path operations. It
// matches the teacher's internal/api.APIError shape: a discriminant field
// (Code here, StatusCode there) plus an Is method so callers can use
// errors.Is against a sentinel built from the same Code.
type Error struct {
	Code    Code
	Field   string // set for InvalidRule
	OtherID uint32 // set for Conflict
	Err     error  // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("classifier: %s", e.Code)
	}
	return fmt.Sprintf("classifier: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches by Code only, like APIError.Is matching by StatusCode: a
// sentinel constructed with just a Code set matches any *Error of that Code
// regardless of Field/OtherID/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New constructs a bare sentinel for a Code, suitable for errors.Is checks.
func New(code Code) *Error { return &Error{Code: code} }

// Wrap attaches op context to an underlying cause under the given Code.
func Wrap(code Code, op string, err error) *Error {
	return &Error{Code: code, Err: fmt.Errorf("%s: %w", op, err)}
}

// Invalid builds an InvalidRule error naming the offending field.
func Invalid(field, reason string) *Error {
	return &Error{Code: InvalidRule, Field: field, Err: fmt.Errorf("%s: %s", field, reason)}
}

// Conflicting builds a Conflict error naming the rule id it collided with.
func Conflicting(otherID uint32) *Error {
	return &Error{Code: Conflict, OtherID: otherID, Err: fmt.Errorf("conflicts with rule %d", otherID)}
}
