package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/promobot/internal/codec"
	"github.com/MrSnakeDoc/promobot/internal/domain"
	"github.com/MrSnakeDoc/promobot/internal/logger"
)

// flakyBackend fails writes on demand.
type flakyBackend struct {
	*FileBackend
	failWrites  atomic.Bool
	failBackups atomic.Bool
}

func (f *flakyBackend) Write(ctx context.Context, key string, data []byte) error {
	if f.failWrites.Load() {
		return syscall.ENOSPC
	}
	return f.FileBackend.Write(ctx, key, data)
}

func (f *flakyBackend) WriteBackup(ctx context.Context, key string, data []byte, takenAt time.Time) (BackupInfo, error) {
	if f.failBackups.Load() {
		return BackupInfo{}, syscall.EACCES
	}
	return f.FileBackend.WriteBackup(ctx, key, data, takenAt)
}

type recordingArchiver struct {
	mu       sync.Mutex
	archived []BackupInfo
	fail     bool
}

func (a *recordingArchiver) Archive(_ context.Context, info BackupInfo, data []byte) error {
	if a.fail {
		return errors.New("bucket unavailable")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, info)
	return nil
}

func newTestStore(t *testing.T, opts Options) (*Store, *FileBackend) {
	t.Helper()
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	return New(backend, logger.New("error", false), opts), backend
}

func decodeFile(t *testing.T, dir string, key domain.DocumentKey) domain.Document {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, string(key)+".json"))
	require.NoError(t, err)
	doc, err := codec.Decode(key, data)
	require.NoError(t, err)
	return doc
}

func setPosts(n int64) func(*domain.Stats) {
	return func(st *domain.Stats) { st.TotalPosts = n }
}

func TestLoadMissingReturnsDefault(t *testing.T) {
	s, _ := newTestStore(t, Options{BackupEvery: 1})
	ctx := context.Background()

	users, err := s.Users(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, users.Count())

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, stats.TotalUsers)
}

func TestLoadIsIdempotent(t *testing.T) {
	s, _ := newTestStore(t, Options{BackupEvery: 1})
	ctx := context.Background()

	_, err := s.MutateUsers(ctx, func(u *domain.Users) error {
		user, _ := u.Ensure("42", time.Now().UTC())
		return user.AddProduct(domain.Product{ID: "p1", Title: "Kettle"}, 5)
	})
	require.NoError(t, err)

	first, err := s.Load(ctx, domain.UsersKey)
	require.NoError(t, err)
	second, err := s.Load(ctx, domain.UsersKey)
	require.NoError(t, err)

	a, err := codec.Encode(first)
	require.NoError(t, err)
	b, err := codec.Encode(second)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestLoadReturnsPrivateCopy(t *testing.T) {
	s, _ := newTestStore(t, Options{BackupEvery: 1})
	ctx := context.Background()

	users, err := s.Users(ctx)
	require.NoError(t, err)
	users.Ensure("intruder", time.Now().UTC())

	again, err := s.Users(ctx)
	require.NoError(t, err)
	_, ok := again.Get("intruder")
	require.False(t, ok)
}

func TestMutatePersistsAcrossRestart(t *testing.T) {
	s, backend := newTestStore(t, Options{BackupEvery: 1})
	ctx := context.Background()

	_, err := s.MutateStats(ctx, setPosts(7))
	require.NoError(t, err)

	restarted := New(backend, logger.New("error", false), Options{})
	stats, err := restarted.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(7), stats.TotalPosts)
	require.False(t, stats.StartedAt.IsZero())
}

func TestConcurrentMutateLosesNoUpdates(t *testing.T) {
	s, backend := newTestStore(t, Options{BackupEvery: 1, MaxBackups: 3})
	ctx := context.Background()

	const writers = 50
	errs := make(chan error, writers*2)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.MutateStats(ctx, func(st *domain.Stats) { st.TotalMessages++ })
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.Stats(ctx)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(writers), stats.TotalMessages)

	onDisk := decodeFile(t, backend.Dir(), domain.StatsKey).(*domain.Stats)
	require.Equal(t, int64(writers), onDisk.TotalMessages)

	backups, err := s.Backups(ctx, domain.StatsKey)
	require.NoError(t, err)
	require.Len(t, backups, 3)
}

func TestConcurrentUsersAreAllKept(t *testing.T) {
	s, backend := newTestStore(t, Options{BackupEvery: 0})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			_, err := s.MutateUsers(ctx, func(u *domain.Users) error {
				u.Ensure(domain.Identity(fmt.Sprint(id)), time.Now().UTC())
				return nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	onDisk := decodeFile(t, backend.Dir(), domain.UsersKey).(*domain.Users)
	require.Equal(t, 20, onDisk.Count())
}

func TestUpdaterErrorAbortsMutation(t *testing.T) {
	s, backend := newTestStore(t, Options{BackupEvery: 1})
	ctx := context.Background()

	_, err := s.MutateStats(ctx, setPosts(1))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = s.Mutate(ctx, domain.StatsKey, func(doc domain.Document) (domain.Document, error) {
		doc.(*domain.Stats).TotalPosts = 99
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalPosts)
	require.Equal(t, int64(1), decodeFile(t, backend.Dir(), domain.StatsKey).(*domain.Stats).TotalPosts)
}

func TestWriteFailureLeavesStateUnchanged(t *testing.T) {
	file, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	backend := &flakyBackend{FileBackend: file}
	s := New(backend, logger.New("error", false), Options{BackupEvery: 1})
	ctx := context.Background()

	_, err = s.MutateStats(ctx, setPosts(1))
	require.NoError(t, err)

	tests := []struct {
		name string
		fail *atomic.Bool
		op   string
		want error
	}{
		{name: "disk full", fail: &backend.failWrites, op: "write", want: syscall.ENOSPC},
		{name: "backup denied", fail: &backend.failBackups, op: "backup", want: syscall.EACCES},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fail.Store(true)
			_, err := s.MutateStats(ctx, setPosts(2))
			tt.fail.Store(false)

			var writeErr *StorageWriteError
			require.ErrorAs(t, err, &writeErr)
			require.Equal(t, tt.op, writeErr.Op)
			require.ErrorIs(t, err, tt.want)

			stats, err := s.Stats(ctx)
			require.NoError(t, err)
			require.Equal(t, int64(1), stats.TotalPosts)
			require.Equal(t, int64(1), decodeFile(t, file.Dir(), domain.StatsKey).(*domain.Stats).TotalPosts)
		})
	}

	// Retrying after the fault clears succeeds.
	_, err = s.MutateStats(ctx, setPosts(2))
	require.NoError(t, err)
	require.Equal(t, int64(2), decodeFile(t, file.Dir(), domain.StatsKey).(*domain.Stats).TotalPosts)
}

func TestMutateWithCancelledContextNeverStarts(t *testing.T) {
	s, backend := newTestStore(t, Options{BackupEvery: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := s.MutateStats(ctx, func(*domain.Stats) { called = true })
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)

	_, err = os.Stat(filepath.Join(backend.Dir(), "stats.json"))
	require.True(t, os.IsNotExist(err))
}

func TestBackupRotation(t *testing.T) {
	s, backend := newTestStore(t, Options{BackupEvery: 1, MaxBackups: 3})
	ctx := context.Background()

	for i := int64(1); i <= 6; i++ {
		_, err := s.MutateStats(ctx, setPosts(i))
		require.NoError(t, err)
	}

	backups, err := s.Backups(ctx, domain.StatsKey)
	require.NoError(t, err)
	require.Len(t, backups, 3)

	// Newest first, each holding the value committed before the write that made it.
	for i, want := range []int64{5, 4, 3} {
		data, err := backend.ReadBackup(ctx, "stats", backups[i].ID)
		require.NoError(t, err)
		doc, err := codec.Decode(domain.StatsKey, data)
		require.NoError(t, err)
		require.Equal(t, want, doc.(*domain.Stats).TotalPosts, "backup %d", i)
	}
}

func TestBackupEveryNthMutation(t *testing.T) {
	s, _ := newTestStore(t, Options{BackupEvery: 2, MaxBackups: 10})
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		_, err := s.MutateStats(ctx, setPosts(i))
		require.NoError(t, err)
	}

	backups, err := s.Backups(ctx, domain.StatsKey)
	require.NoError(t, err)
	require.Len(t, backups, 2)
}

func TestRecoveryFromBackup(t *testing.T) {
	s, backend := newTestStore(t, Options{BackupEvery: 1})
	ctx := context.Background()

	_, err := s.MutateUsers(ctx, func(u *domain.Users) error {
		u.Ensure("42", time.Now().UTC())
		return nil
	})
	require.NoError(t, err)
	_, err = s.MutateUsers(ctx, func(u *domain.Users) error {
		u.Ensure("43", time.Now().UTC())
		return nil
	})
	require.NoError(t, err)

	primary := filepath.Join(backend.Dir(), "users.json")
	require.NoError(t, os.WriteFile(primary, []byte(`{"schema_version": 2, "kind": "us`), 0o600))

	restarted := New(backend, logger.New("error", false), Options{BackupEvery: 1})
	users, err := restarted.Users(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, users.Count())
	_, ok := users.Get("42")
	require.True(t, ok)

	stats, err := restarted.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.ErrorsByKind[domain.ErrorKindDecode])

	// The primary was restored from the backup.
	repaired := decodeFile(t, backend.Dir(), domain.UsersKey).(*domain.Users)
	require.Equal(t, 1, repaired.Count())
}

func TestRecoveryFallsBackToDefault(t *testing.T) {
	s, backend := newTestStore(t, Options{BackupEvery: 1})
	ctx := context.Background()

	require.NoError(t, os.WriteFile(filepath.Join(backend.Dir(), "users.json"), []byte("not json"), 0o600))
	_, err := backend.WriteBackup(ctx, "users", []byte("also not json"), time.Now())
	require.NoError(t, err)

	users, err := s.Users(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, users.Count())

	// A second load reports nothing new.
	_, err = s.Users(ctx)
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.ErrorsByKind[domain.ErrorKindCorruptDocument])

	// The store keeps working on the empty document.
	_, err = s.MutateUsers(ctx, func(u *domain.Users) error {
		u.Ensure("42", time.Now().UTC())
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, decodeFile(t, backend.Dir(), domain.UsersKey).(*domain.Users).Count())
}

func TestUnsupportedSchemaIsNotRecovered(t *testing.T) {
	s, backend := newTestStore(t, Options{BackupEvery: 1})
	ctx := context.Background()

	future := []byte(`{"schema_version": 3, "kind": "users", "data": {"users": {}}}`)
	primary := filepath.Join(backend.Dir(), "users.json")
	require.NoError(t, os.WriteFile(primary, future, 0o600))

	_, err := s.Users(ctx)
	var schemaErr *codec.UnsupportedSchemaError
	require.ErrorAs(t, err, &schemaErr)

	_, err = s.MutateUsers(ctx, func(*domain.Users) error { return nil })
	require.ErrorAs(t, err, &schemaErr)

	data, err := os.ReadFile(primary)
	require.NoError(t, err)
	require.Equal(t, future, data)

	// Other documents are unaffected.
	_, err = s.MutateStats(ctx, setPosts(1))
	require.NoError(t, err)
}

func TestCacheExpiryRereadsBackend(t *testing.T) {
	now := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	s, backend := newTestStore(t, Options{BackupEvery: 1, CacheTTL: time.Minute, Now: clock})
	ctx := context.Background()

	_, err := s.MutateStats(ctx, setPosts(1))
	require.NoError(t, err)

	// Change the file behind the store's back; the cache still answers.
	other := domain.NewStats()
	other.TotalPosts = 9
	data, err := codec.Encode(other)
	require.NoError(t, err)
	require.NoError(t, backend.Write(ctx, "stats", data))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.TotalPosts)

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(9), stats.TotalPosts)
}

func TestPruneBackups(t *testing.T) {
	s, backend := newTestStore(t, Options{BackupEvery: 1, MaxBackups: 10})
	ctx := context.Background()

	payload, err := codec.Encode(domain.NewUsers())
	require.NoError(t, err)
	_, err = backend.WriteBackup(ctx, "users", payload, time.Now().Add(-10*24*time.Hour))
	require.NoError(t, err)
	_, err = backend.WriteBackup(ctx, "users", payload, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	cutoff := time.Now().Add(-7 * 24 * time.Hour)

	failing := &recordingArchiver{fail: true}
	pruned, err := s.PruneBackups(ctx, cutoff, failing)
	require.Error(t, err)
	require.Zero(t, pruned)

	archiver := &recordingArchiver{}
	pruned, err = s.PruneBackups(ctx, cutoff, archiver)
	require.NoError(t, err)
	require.Equal(t, 1, pruned)
	require.Len(t, archiver.archived, 1)

	left, err := s.Backups(ctx, domain.UsersKey)
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.True(t, left[0].TakenAt.After(cutoff))
}
