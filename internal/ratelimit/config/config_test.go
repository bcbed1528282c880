package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"aegis/internal/ratelimit/models"
)

func TestDefaultPolicies(t *testing.T) {
	cfg := DefaultConfig()

	cases := map[models.Policy]models.Limit{
		models.PolicyVerification:   {Requests: 5, Window: 15 * time.Minute},
		models.PolicyProfileUpdate:  {Requests: 10, Window: time.Minute},
		models.PolicyPasswordChange: {Requests: 3, Window: time.Hour},
		models.PolicyIDUpload:       {Requests: 5, Window: time.Hour},
		models.PolicyAdminApproval:  {Requests: 10, Window: time.Hour},
	}
	for policy, want := range cases {
		got, ok := cfg.Limit(policy)
		assert.True(t, ok, policy)
		assert.Equal(t, want, got, policy)
	}

	assert.Equal(t, 10, cfg.AuthLockout.MaxFailures)
	assert.Equal(t, 15*time.Minute, cfg.AuthLockout.LockDuration)
}
