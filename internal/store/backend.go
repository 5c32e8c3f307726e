package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by a Backend when a document or backup does not exist.
var ErrNotFound = errors.New("not found")

// BackupInfo describes one stored backup of a document.
type BackupInfo struct {
	Key     string
	ID      string
	TakenAt time.Time
	Size    int64
}

// Backend is the storage medium behind the Store. Implementations must make
// Write atomic: a concurrent or later Read sees either the previous bytes or
// the new ones, never a mix. Only the Store calls a Backend, always under the
// document's lock for writes.
type Backend interface {
	// Read returns the committed bytes for key or ErrNotFound.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write atomically replaces the committed bytes for key.
	Write(ctx context.Context, key string, data []byte) error

	// WriteBackup stores data as a new backup of key.
	WriteBackup(ctx context.Context, key string, data []byte, takenAt time.Time) (BackupInfo, error)
	// ListBackups returns the backups of key, newest first.
	ListBackups(ctx context.Context, key string) ([]BackupInfo, error)
	ReadBackup(ctx context.Context, key, id string) ([]byte, error)
	DeleteBackup(ctx context.Context, key, id string) error

	// Ping reports whether the medium is usable.
	Ping(ctx context.Context) error
	// Name is used in logs and status pages.
	Name() string
}
