//go:build integration

package credential_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/passkey/models"
	"aegis/internal/passkey/store/credential"
	"aegis/pkg/platform/sentinel"
	"aegis/pkg/testutil/containers"
)

func TestPostgresCredentialStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	ctx := context.Background()
	require.NoError(t, pg.TruncateTables(ctx, "passkey_credentials"))
	s := credential.NewPostgresStore(pg.DB)

	now := time.Now().UTC()
	cred := &models.Credential{SubjectID: "u1", CredentialID: []byte("cred-1"), Data: []byte(`{"id":"Y3JlZC0x"}`), CreatedAt: now}
	require.NoError(t, s.Add(ctx, cred))
	assert.ErrorIs(t, s.Add(ctx, cred), sentinel.ErrConflict)

	cred.Data = []byte(`{"id":"Y3JlZC0x","authenticator":{"signCount":4}}`)
	require.NoError(t, s.Update(ctx, cred))

	got, err := s.ListBySubject(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.JSONEq(t, string(cred.Data), string(got[0].Data))

	assert.ErrorIs(t, s.Update(ctx, &models.Credential{CredentialID: []byte("nope"), Data: []byte(`{}`)}), sentinel.ErrNotFound)
}
