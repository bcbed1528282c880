// Package domainerrors defines the error taxonomy shared by services and the
// HTTP layer. Services return *Error values; handlers translate the Code into a
// status through httputil.WriteError.
package domainerrors

import (
	"errors"
	"time"
)

// Code identifies an error kind independently from its message.
type Code string

const (
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"
	CodeValidation         Code = "validation_error"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"

	CodeExpired          Code = "expired"
	CodeInvalidCode      Code = "invalid_code"
	CodeInvalidAssertion Code = "invalid_assertion"
	CodeAlreadyConsumed  Code = "already_consumed"
	CodeAlreadyFinalized Code = "already_finalized"
	CodeRateLimited      Code = "rate_limited"
	CodeAccountLocked    Code = "account_locked"
	CodeDuplicateHash    Code = "duplicate_hash"
	CodeInvalidState     Code = "invalid_state"
	CodeDeliveryFailed   Code = "delivery_failed"
	CodeContained        Code = "account_contained"
)

// Error is a domain error with a stable code.
type Error struct {
	Code    Code
	Message string
	// RetryAfter is set for throttling kinds (rate_limited, account_locked).
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a domain error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a domain code to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// WithRetryAfter returns a throttling error carrying the wait duration.
func WithRetryAfter(code Code, msg string, retryAfter time.Duration) *Error {
	return &Error{Code: code, Message: msg, RetryAfter: retryAfter}
}

// As extracts the outermost domain error from the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether any domain error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// RetryAfter returns the retry hint carried by err, if any.
func RetryAfter(err error) (time.Duration, bool) {
	de, ok := As(err)
	if !ok || de.RetryAfter <= 0 {
		return 0, false
	}
	return de.RetryAfter, true
}
