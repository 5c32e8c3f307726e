package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileBackendReadWrite(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = b.Read(ctx, "users")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Write(ctx, "users", []byte("one")))
	require.NoError(t, b.Write(ctx, "users", []byte("two")))

	data, err := b.Read(ctx, "users")
	require.NoError(t, err)
	require.Equal(t, "two", string(data))

	entries, err := os.ReadDir(b.Dir())
	require.NoError(t, err)
	for _, e := range entries {
		require.NotContains(t, e.Name(), tmpMarker, "temp file left behind")
	}
}

func TestFileBackendRemovesStaleTemps(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, ".users.json"+tmpMarker+"123")
	require.NoError(t, os.WriteFile(stale, []byte("half"), 0o600))

	_, err := NewFileBackend(dir)
	require.NoError(t, err)

	_, err = os.Stat(stale)
	require.True(t, os.IsNotExist(err))
}

func TestFileBackendBackups(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	first, err := b.WriteBackup(ctx, "stats", []byte("a"), at)
	require.NoError(t, err)
	// Same instant twice still yields distinct, ordered ids.
	second, err := b.WriteBackup(ctx, "stats", []byte("b"), at)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.True(t, second.TakenAt.After(first.TakenAt))

	_, err = b.WriteBackup(ctx, "users", []byte("c"), at)
	require.NoError(t, err)

	list, err := b.ListBackups(ctx, "stats")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, second.ID, list[0].ID)
	require.Equal(t, int64(1), list[0].Size)

	data, err := b.ReadBackup(ctx, "stats", first.ID)
	require.NoError(t, err)
	require.Equal(t, "a", string(data))

	require.NoError(t, b.DeleteBackup(ctx, "stats", first.ID))
	require.ErrorIs(t, b.DeleteBackup(ctx, "stats", first.ID), ErrNotFound)
}

func TestFileBackendRejectsForeignBackupIDs(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, id := range []string{
		"../users.json",
		"users.20240301T120000.000000000.bak",
		"stats.not-a-stamp.bak",
		"stats/20240301T120000.000000000.bak",
	} {
		_, err := b.ReadBackup(ctx, "stats", id)
		require.Error(t, err, id)
		require.Error(t, b.DeleteBackup(ctx, "stats", id), id)
	}
}

func TestFileBackendPing(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, b.Ping(context.Background()))
	require.True(t, strings.HasPrefix(b.Name(), "file:"))
}
