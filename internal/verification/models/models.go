// Package models defines one-time verification requests.
package models

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// Purpose scopes a code to a single flow.
type Purpose string

const (
	PurposeSignup        Purpose = "signup"
	PurposeLogin         Purpose = "login"
	PurposePasswordReset Purpose = "password_reset"
	PurposeEmailChange   Purpose = "email_change"
	PurposeDeleteAccount Purpose = "delete_account"
	PurposeMFADisable    Purpose = "mfa_disable"
)

// Purposes lists every purpose in a stable order.
var Purposes = []Purpose{
	PurposeSignup, PurposeLogin, PurposePasswordReset,
	PurposeEmailChange, PurposeDeleteAccount, PurposeMFADisable,
}

func (p Purpose) IsValid() bool {
	for _, known := range Purposes {
		if p == known {
			return true
		}
	}
	return false
}

// Sensitive purposes are blocked while the subject is under containment.
func (p Purpose) Sensitive() bool {
	return p == PurposeEmailChange || p == PurposeDeleteAccount || p == PurposeMFADisable
}

// CodeLength is the number of decimal digits in a code.
const CodeLength = 6

// Request is the single active code for (SubjectID, Purpose). Only the
// SHA-256 of the code is kept.
type Request struct {
	SubjectID string    `json:"subject_id"`
	Purpose   Purpose   `json:"purpose"`
	CodeHash  string    `json:"code_hash"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
	Attempts  int       `json:"attempts"`
}

// HashCode returns the hex SHA-256 of code.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// Matches compares in constant time.
func (r *Request) Matches(codeHash string) bool {
	return subtle.ConstantTimeCompare([]byte(r.CodeHash), []byte(codeHash)) == 1
}

// IsExpired reports now > ExpiresAt.
func (r *Request) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Outcome is the result of one verification attempt.
type Outcome string

const (
	OutcomeConsumed        Outcome = "consumed"
	OutcomeMismatch        Outcome = "mismatch"
	OutcomeExhausted       Outcome = "exhausted"
	OutcomeExpired         Outcome = "expired"
	OutcomeAlreadyConsumed Outcome = "already_consumed"
)

// AttemptResult is returned by the store's compare-and-swap.
type AttemptResult struct {
	Outcome  Outcome
	Attempts int
}

// Status is the read-only view of an active request.
type Status struct {
	Exists            bool      `json:"exists"`
	ExpiresAt         time.Time `json:"expires_at,omitzero"`
	AttemptsRemaining int       `json:"attempts_remaining"`
}

// IssueResult carries the generated code back to the caller.
type IssueResult struct {
	Code      string
	ExpiresAt time.Time
}
