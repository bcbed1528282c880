// Package config holds the limiter and lockout policy tables.
package config

import (
	"time"

	"aegis/internal/ratelimit/models"
)

// AuthLockoutConfig is the per-credential lockout policy.
type AuthLockoutConfig struct {
	MaxFailures    int
	WindowDuration time.Duration
	LockDuration   time.Duration
}

// Config bundles every limiter policy.
type Config struct {
	Policies    map[models.Policy]models.Limit
	AuthLockout AuthLockoutConfig
}

// DefaultConfig returns the production policy table.
func DefaultConfig() *Config {
	return &Config{
		Policies: map[models.Policy]models.Limit{
			models.PolicyVerification:   {Requests: 5, Window: 15 * time.Minute},
			models.PolicyProfileUpdate:  {Requests: 10, Window: time.Minute},
			models.PolicyPasswordChange: {Requests: 3, Window: time.Hour},
			models.PolicyIDUpload:       {Requests: 5, Window: time.Hour},
			models.PolicyAdminApproval:  {Requests: 10, Window: time.Hour},
			models.PolicyPairing:        {Requests: 10, Window: time.Minute},
		},
		// Counted across requests, so it stays above the per-request attempt cap.
		AuthLockout: AuthLockoutConfig{
			MaxFailures:    10,
			WindowDuration: 15 * time.Minute,
			LockDuration:   15 * time.Minute,
		},
	}
}

// Limit returns the configured limit for p.
func (c *Config) Limit(p models.Policy) (models.Limit, bool) {
	l, ok := c.Policies[p]
	return l, ok
}
