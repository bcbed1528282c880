package officehours

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/pkg/platform/sentinel"
)

const sample = `
[[office]]
code = "HQ"
timezone = "UTC"

[office.weekly.monday]
start = "09:00"
end = "18:00"

[[office.exception]]
date = "2024-06-03"
working = false

[[office.exception]]
date = "2024-06-04"
working = true
start = "10:00"
end = "12:00"

[[office]]
code = "BRANCH"
`

func writeFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "office_hours.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFileStoreLoads(t *testing.T) {
	path := writeFile(t, t.TempDir(), sample)
	store, err := NewFileStore(path, nil)
	require.NoError(t, err)
	ctx := context.Background()

	hq, err := store.Get(ctx, "HQ")
	require.NoError(t, err)
	assert.False(t, hq.IsWorkingTime(time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)), "holiday monday")
	assert.True(t, hq.IsWorkingTime(time.Date(2024, 6, 10, 17, 30, 0, 0, time.UTC)), "regular monday")
	assert.True(t, hq.IsWorkingTime(time.Date(2024, 6, 4, 11, 0, 0, 0, time.UTC)))
	assert.False(t, hq.IsWorkingTime(time.Date(2024, 6, 5, 11, 0, 0, 0, time.UTC)), "no wednesday window")

	branch, err := store.Get(ctx, "BRANCH")
	require.NoError(t, err)
	assert.True(t, branch.IsWorkingTime(time.Date(2024, 6, 5, 8, 0, 0, 0, time.UTC)), "default hours")

	_, err = store.Get(ctx, "NOPE")
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
}

func TestFileStoreRejectsBadFile(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFileStore(writeFile(t, dir, "[[office]]\ncode = \"X\"\n[office.weekly.funday]\nstart=\"09:00\"\nend=\"10:00\"\n"), nil)
	assert.Error(t, err)
}

func TestFileStoreWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, sample)
	store, err := NewFileStore(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, sample+"\n[[office]]\ncode = \"NEW\"\n")

	require.Eventually(t, func() bool {
		_, err := store.Get(context.Background(), "NEW")
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)

	writeFile(t, dir, "not toml [[[")
	time.Sleep(200 * time.Millisecond)
	_, err = store.Get(context.Background(), "HQ")
	assert.NoError(t, err, "last good schedules survive a bad reload")

	cancel()
	assert.NoError(t, <-done)
}
