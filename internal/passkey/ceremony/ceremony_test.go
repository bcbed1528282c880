package ceremony

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/passkey/store/credential"
)

func newAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := New(Config{RPID: "localhost", RPDisplayName: "Aegis", RPOrigins: []string{"http://localhost:3000"}}, credential.NewInMemoryStore())
	require.NoError(t, err)
	return a
}

func TestBeginAssertion(t *testing.T) {
	a := newAdapter(t)
	options, session, err := a.BeginAssertion(context.Background())
	require.NoError(t, err)

	var opts map[string]any
	require.NoError(t, json.Unmarshal(options, &opts))
	pk, ok := opts["publicKey"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, pk["challenge"])
	assert.Equal(t, "localhost", pk["rpId"])

	var data map[string]any
	require.NoError(t, json.Unmarshal(session, &data))
	assert.Equal(t, pk["challenge"], data["challenge"])
}

func TestVerifyAssertionRejectsGarbage(t *testing.T) {
	a := newAdapter(t)
	_, session, err := a.BeginAssertion(context.Background())
	require.NoError(t, err)

	_, err = a.VerifyAssertion(context.Background(), session, []byte(`{"id":"x"}`))
	assert.ErrorIs(t, err, ErrInvalidAssertion)
}

func TestBeginRegistrationUsesSubjectHandle(t *testing.T) {
	a := newAdapter(t)
	options, _, err := a.BeginRegistration(context.Background(), "subj-1", "jane@example.com")
	require.NoError(t, err)

	var opts struct {
		PublicKey struct {
			User struct {
				Name string `json:"name"`
			} `json:"user"`
			AuthenticatorSelection struct {
				ResidentKey string `json:"residentKey"`
			} `json:"authenticatorSelection"`
		} `json:"publicKey"`
	}
	require.NoError(t, json.Unmarshal(options, &opts))
	assert.Equal(t, "jane@example.com", opts.PublicKey.User.Name)
	assert.Equal(t, "required", opts.PublicKey.AuthenticatorSelection.ResidentKey)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{}, credential.NewInMemoryStore())
	assert.Error(t, err)
	_, err = New(Config{RPID: "localhost", RPDisplayName: "Aegis", RPOrigins: []string{"http://localhost"}}, nil)
	assert.Error(t, err)
}
