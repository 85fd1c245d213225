/*
errors.go - Error taxonomy shared by every domain package

PURPOSE:
  One place that decides how a failure is classified. Domain packages build
  their sentinel errors with the constructors below, and the HTTP layer maps
  the kind to a status code without knowing the individual errors.

ERROR KINDS:
  ErrInvalid         -> 400  malformed input, violated business rule
  ErrUnauthenticated -> 401  no valid session
  ErrForbidden       -> 403  wrong role/permission, not eligible
  ErrNotFound        -> 404  referenced row does not exist

  Anything else is an upstream/storage failure (500).

USAGE:
  var ErrAlreadyBorrowed = domain.Invalid("bow already borrowed")

  if errors.Is(err, domain.ErrInvalid) { ... }
  if errors.Is(err, equipment.ErrAlreadyBorrowed) { ... }

SEE ALSO:
  - api/errors.go: status mapping
*/
package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL KINDS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalid         = errors.New("invalid request")
	ErrUnauthenticated = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERROR
// =============================================================================

// Error is a client-facing failure. Message is safe to return to the caller.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// Invalid returns a validation error (400).
func Invalid(msg string) *Error { return &Error{Kind: ErrInvalid, Message: msg} }

// Invalidf is Invalid with formatting.
func Invalidf(format string, args ...any) *Error {
	return Invalid(fmt.Sprintf(format, args...))
}

// Forbidden returns an authorization error (403).
func Forbidden(msg string) *Error { return &Error{Kind: ErrForbidden, Message: msg} }

// NotFound returns a missing-entity error (404).
func NotFound(msg string) *Error { return &Error{Kind: ErrNotFound, Message: msg} }

// Unauthenticated returns a missing-session error (401).
func Unauthenticated(msg string) *Error { return &Error{Kind: ErrUnauthenticated, Message: msg} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool { return errors.Is(err, ErrInvalid) }

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsForbidden returns true if the caller lacks the right to perform the action.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// Message returns the client-safe message of a domain error, or fallback for
// anything that is not one.
func Message(err error, fallback string) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return fallback
}
