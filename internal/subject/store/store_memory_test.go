package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/internal/subject/models"
	"aegis/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	_, err := s.Get(ctx, "nobody")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(ctx, &models.Subject{ID: "s1", Email: "a@example.com", DeletionScheduledAt: &at}))

	got, err := s.Get(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, got.DeletionScheduled())
	assert.Equal(t, "a@example.com", got.Email)
}
