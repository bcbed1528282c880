package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/passkey/models"
	"aegis/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	require.NoError(t, s.Add(ctx, &models.Credential{SubjectID: "u1", CredentialID: []byte{1}, Data: []byte(`{"n":1}`)}))
	require.NoError(t, s.Add(ctx, &models.Credential{SubjectID: "u2", CredentialID: []byte{2}}))
	require.NoError(t, s.Add(ctx, &models.Credential{SubjectID: "u1", CredentialID: []byte{3}}))

	t.Run("duplicate id", func(t *testing.T) {
		err := s.Add(ctx, &models.Credential{SubjectID: "u9", CredentialID: []byte{1}})
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("list by subject keeps registration order", func(t *testing.T) {
		got, err := s.ListBySubject(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, []byte{1}, got[0].CredentialID)
		assert.Equal(t, []byte{3}, got[1].CredentialID)
	})

	t.Run("update", func(t *testing.T) {
		require.NoError(t, s.Update(ctx, &models.Credential{SubjectID: "u1", CredentialID: []byte{1}, Data: []byte(`{"n":2}`)}))
		got, _ := s.ListBySubject(ctx, "u1")
		assert.JSONEq(t, `{"n":2}`, string(got[0].Data))

		err := s.Update(ctx, &models.Credential{CredentialID: []byte{42}})
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
