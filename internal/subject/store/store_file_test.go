package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/pkg/platform/sentinel"
)

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "subjects.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	ctx := context.Background()
	path := writeSeed(t, `
[[subject]]
id = "user-1"
email = " jane@example.com "
display_name = "Jane"

[[subject]]
id = "user-2"
email = "leaving@example.com"
deletion_scheduled_at = 2024-06-01T00:00:00Z
`)
	s := NewInMemoryStore()
	n, err := s.LoadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	jane, err := s.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", jane.Email)
	assert.False(t, jane.DeletionScheduled())

	leaving, err := s.Get(ctx, "user-2")
	require.NoError(t, err)
	require.True(t, leaving.DeletionScheduled())
	assert.True(t, leaving.DeletionScheduledAt.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)))
}

func TestLoadFileRejectsInvalidEntries(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	path := writeSeed(t, `
[[subject]]
id = "user-1"

[[subject]]
email = "no-id@example.com"

[[subject]]
id = "user-1"
`)
	_, err := s.LoadFile(ctx, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id is required")
	assert.Contains(t, err.Error(), "listed twice")

	_, err = s.Get(ctx, "user-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound, "a bad file stores nothing")

	_, err = s.LoadFile(ctx, filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
