// Package errors provides common domain error types for the rolograph service.
//
// This package defines sentinel errors for domain conditions like "not found"
// or "validation error" that are shared across packages. Typed errors enable
// consistent error handling with errors.Is() checks: validation errors surface
// to the caller untouched, conflicts are recovered locally, and rate-limited
// operations return without doing work.
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g. duplicate identity).
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates invalid input or a cross-owner reference.
	ErrValidation = errors.New("validation error")

	// ErrInvalidState indicates the operation is not valid for the current state.
	ErrInvalidState = errors.New("invalid state")

	// ErrRateLimited indicates the per-owner question budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether any error in err's chain is ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState reports whether any error in err's chain is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsRateLimited reports whether any error in err's chain is ErrRateLimited.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
