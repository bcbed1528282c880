package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewBucketKey(t *testing.T) {
	assert.Equal(t, "rl:verification:jane@example.com", NewBucketKey(PolicyVerification, "  Jane@Example.com "))
	assert.Equal(t, "rl:pairing:user_admin", NewBucketKey(PolicyPairing, "user:admin"))
}

func TestLockoutKey(t *testing.T) {
	assert.Equal(t, "lockout:verify_login:u1", NewLockoutKey("verify:login", "U1").String())
}

func TestRetryAfterSeconds(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, RetryAfterSeconds(now.Add(-time.Second), now))
	assert.Equal(t, 1, RetryAfterSeconds(now.Add(10*time.Millisecond), now))
	assert.Equal(t, 900, RetryAfterSeconds(now.Add(15*time.Minute), now))
}

func TestAuthLockout(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l, err := NewAuthLockout("lockout:verify_login:u1", now)
	assert.NoError(t, err)
	assert.False(t, l.IsLockedAt(now))

	l.ApplyLock(15*time.Minute, now)
	assert.True(t, l.IsLockedAt(now.Add(14*time.Minute)))
	assert.False(t, l.IsLockedAt(now.Add(15*time.Minute)))

	assert.True(t, l.WindowExpired(15*time.Minute, now.Add(16*time.Minute)))

	_, err = NewAuthLockout("", now)
	assert.Error(t, err)
}

func TestPolicyIsValid(t *testing.T) {
	assert.True(t, PolicyAdminApproval.IsValid())
	assert.False(t, Policy("unknown").IsValid())
}
