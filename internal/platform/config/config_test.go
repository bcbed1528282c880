package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 3*time.Minute, cfg.Verification.DefaultTTL)
	assert.Equal(t, 5, cfg.Verification.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.WebAuthn.PairingTTL)
	assert.Equal(t, "aegis.ledger.anchors", cfg.Kafka.AnchorTopic)
	assert.Empty(t, cfg.Postgres.URL)
	assert.Empty(t, cfg.Subjects.File)
}

func TestLoadSubjectsFile(t *testing.T) {
	t.Setenv("SUBJECTS_FILE", "configs/subjects.dev.toml")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "configs/subjects.dev.toml", cfg.Subjects.File)
}

func TestLoadPerPurposeTTL(t *testing.T) {
	t.Setenv("VERIFICATION_TTL_PASSWORD_RESET", "10m")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10*time.Minute, cfg.Verification.TTL("password_reset"))
	assert.Equal(t, 3*time.Minute, cfg.Verification.TTL("login"))
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadRejectsDevSecretsInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SIGNING_KEY")
	assert.Contains(t, err.Error(), "MFA_ENCRYPTION_KEY")
}
