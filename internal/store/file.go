package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/utils"
)

const (
	backupDirName    = "backups"
	backupStampTime  = "20060102T150405.000000000"
	documentFileExt  = ".json"
	backupFileSuffix = ".bak"
	tmpMarker        = ".tmp-"
)

// FileBackend keeps each document in <dir>/<key>.json and its backups in
// <dir>/backups/<key>.<stamp>.bak.
type FileBackend struct {
	dir       string
	backupDir string

	mu        sync.Mutex
	lastStamp map[string]time.Time
}

// NewFileBackend creates the data directories and removes temp files left
// behind by an interrupted write.
func NewFileBackend(dir string) (*FileBackend, error) {
	b := &FileBackend{
		dir:       dir,
		backupDir: filepath.Join(dir, backupDirName),
		lastStamp: make(map[string]time.Time),
	}
	for _, d := range []string{b.dir, b.backupDir} {
		if err := os.MkdirAll(d, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", d, err)
		}
		removeStaleTemps(d)
	}
	return b, nil
}

func (b *FileBackend) Name() string { return "file:" + b.dir }

// Dir returns the data directory.
func (b *FileBackend) Dir() string { return b.dir }

func (b *FileBackend) documentPath(key string) string {
	return filepath.Join(b.dir, key+documentFileExt)
}

func (b *FileBackend) Read(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(b.documentPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (b *FileBackend) Write(_ context.Context, key string, data []byte) error {
	return writeAtomic(b.dir, key+documentFileExt, data)
}

func (b *FileBackend) WriteBackup(_ context.Context, key string, data []byte, takenAt time.Time) (BackupInfo, error) {
	stamp := b.nextStamp(key, takenAt)
	id := backupID(key, stamp)
	if err := writeAtomic(b.backupDir, id, data); err != nil {
		return BackupInfo{}, err
	}
	return BackupInfo{Key: key, ID: id, TakenAt: stamp, Size: int64(len(data))}, nil
}

// nextStamp returns a timestamp strictly after any previous backup of key so
// ids never collide and sort in creation order.
func (b *FileBackend) nextStamp(key string, t time.Time) time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()

	t = t.UTC()
	if last := b.lastStamp[key]; !t.After(last) {
		t = last.Add(time.Nanosecond)
	}
	for {
		if _, err := os.Stat(filepath.Join(b.backupDir, backupID(key, t))); errors.Is(err, fs.ErrNotExist) {
			break
		}
		t = t.Add(time.Nanosecond)
	}
	b.lastStamp[key] = t
	return t
}

func (b *FileBackend) ListBackups(_ context.Context, key string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(b.backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var out []BackupInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		takenAt, ok := parseBackupID(key, e.Name())
		if !ok {
			continue
		}
		info := BackupInfo{Key: key, ID: e.Name(), TakenAt: takenAt}
		if fi, err := e.Info(); err == nil {
			info.Size = fi.Size()
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].TakenAt.Equal(out[j].TakenAt) {
			return out[i].TakenAt.After(out[j].TakenAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (b *FileBackend) ReadBackup(_ context.Context, key, id string) ([]byte, error) {
	if _, ok := parseBackupID(key, id); !ok {
		return nil, fmt.Errorf("invalid backup id %q", id)
	}
	data, err := os.ReadFile(filepath.Join(b.backupDir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

func (b *FileBackend) DeleteBackup(_ context.Context, key, id string) error {
	if _, ok := parseBackupID(key, id); !ok {
		return fmt.Errorf("invalid backup id %q", id)
	}
	err := os.Remove(filepath.Join(b.backupDir, id))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

// Ping checks that the data directory exists and accepts writes.
func (b *FileBackend) Ping(_ context.Context) error {
	f, err := os.CreateTemp(b.dir, "."+"ping"+tmpMarker+"*")
	if err != nil {
		return fmt.Errorf("data directory not writable: %w", err)
	}
	name := f.Name()
	utils.Close(f)
	return os.Remove(name)
}

func backupID(key string, t time.Time) string {
	return key + "." + t.UTC().Format(backupStampTime) + backupFileSuffix
}

func parseBackupID(key, id string) (time.Time, bool) {
	if strings.ContainsAny(id, `/\`) || !strings.HasPrefix(id, key+".") || !strings.HasSuffix(id, backupFileSuffix) {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(id, key+"."), backupFileSuffix)
	t, err := time.ParseInLocation(backupStampTime, stamp, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// writeAtomic writes data to a temp file in dir, flushes it and renames it
// over dir/name.
func writeAtomic(dir, name string, data []byte) (err error) {
	tmp, err := os.CreateTemp(dir, "."+name+tmpMarker+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		utils.Close(tmp)
		return err
	}
	if err = tmp.Sync(); err != nil {
		utils.Close(tmp)
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return err
	}
	syncDir(dir)
	return nil
}

// syncDir persists the rename itself. Best effort: some filesystems refuse
// fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer utils.Close(d)
	_ = d.Sync()
}

func removeStaleTemps(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), ".") && strings.Contains(e.Name(), tmpMarker) {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}
