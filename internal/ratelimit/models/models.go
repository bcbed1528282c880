package models

import (
	"math"
	"time"

	dErrors "aegis/pkg/domain-errors"
)

// Policy names a configured limiter.
type Policy string

const (
	PolicyVerification   Policy = "verification"
	PolicyProfileUpdate  Policy = "profile_update"
	PolicyPasswordChange Policy = "password_change"
	PolicyIDUpload       Policy = "id_upload"
	PolicyAdminApproval  Policy = "admin_approval"
	PolicyPairing        Policy = "pairing"
)

// IsValid reports whether p is one of the configured policies.
func (p Policy) IsValid() bool {
	switch p {
	case PolicyVerification, PolicyProfileUpdate, PolicyPasswordChange,
		PolicyIDUpload, PolicyAdminApproval, PolicyPairing:
		return true
	}
	return false
}

// Limit is a sliding window of at most Requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

// RateLimitResult represents the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	// RetryAfter is whole seconds until the oldest entry leaves the window,
	// only set on denial.
	RetryAfter int `json:"retry_after,omitempty"`
}

// RetryAfterSeconds is ceil(resetAt - now), never negative.
func RetryAfterSeconds(resetAt, now time.Time) int {
	d := resetAt.Sub(now).Seconds()
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d))
}

// AuthLockout tracks failed attempts against a single credential.
type AuthLockout struct {
	Identifier    string     `json:"identifier"`
	FailureCount  int        `json:"failure_count"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	LastFailureAt time.Time  `json:"last_failure_at"`
}

// NewAuthLockout creates an empty record for identifier.
func NewAuthLockout(identifier string, now time.Time) (*AuthLockout, error) {
	if identifier == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "identifier cannot be empty")
	}
	return &AuthLockout{Identifier: identifier, LastFailureAt: now}, nil
}

// IsLockedAt reports whether the lock is in force at now.
func (l *AuthLockout) IsLockedAt(now time.Time) bool {
	return l.LockedUntil != nil && now.Before(*l.LockedUntil)
}

// WindowExpired reports whether failures are stale and should restart at zero.
func (l *AuthLockout) WindowExpired(window time.Duration, now time.Time) bool {
	return !l.LastFailureAt.IsZero() && now.Sub(l.LastFailureAt) > window
}

// ApplyLock locks the credential for d starting at now.
func (l *AuthLockout) ApplyLock(d time.Duration, now time.Time) {
	until := now.Add(d)
	l.LockedUntil = &until
}
