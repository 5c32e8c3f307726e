package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/promobot/internal/store"
)

var _ store.Backend = (*Backend)(nil)

// Backend keeps documents and their backups in Redis. A document is a plain
// string key; backups are string keys indexed by a sorted set scored with
// their timestamp in nanoseconds.
type Backend struct {
	client *redis.Client
	addr   string
}

// NewBackend creates a store backend on top of a connected client
func NewBackend(client *redis.Client) *Backend {
	return &Backend{
		client: client,
		addr:   client.Options().Addr,
	}
}

func (b *Backend) Name() string { return "redis:" + b.addr }

// Read retrieves a document
func (b *Backend) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, DocumentKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return data, nil
}

// Write replaces a document. SET is atomic on the server.
func (b *Backend) Write(ctx context.Context, key string, data []byte) error {
	if err := b.client.Set(ctx, DocumentKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// WriteBackup stores a backup payload and indexes it in one transaction
func (b *Backend) WriteBackup(ctx context.Context, key string, data []byte, takenAt time.Time) (store.BackupInfo, error) {
	takenAt = takenAt.UTC()
	id := strconv.FormatInt(takenAt.UnixNano(), 10)

	// Bump the id until it is free so two backups in the same instant stay distinct.
	for {
		n, err := b.client.Exists(ctx, BackupKey(key, id)).Result()
		if err != nil {
			return store.BackupInfo{}, fmt.Errorf("failed to check backup: %w", err)
		}
		if n == 0 {
			break
		}
		takenAt = takenAt.Add(time.Nanosecond)
		id = strconv.FormatInt(takenAt.UnixNano(), 10)
	}

	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, BackupKey(key, id), data, 0)
		pipe.ZAdd(ctx, BackupIndexKey(key), redis.Z{Score: float64(takenAt.UnixNano()), Member: id})
		return nil
	})
	if err != nil {
		return store.BackupInfo{}, fmt.Errorf("failed to save backup: %w", err)
	}

	return store.BackupInfo{Key: key, ID: id, TakenAt: takenAt, Size: int64(len(data))}, nil
}

// ListBackups returns the indexed backups of a document, newest first
func (b *Backend) ListBackups(ctx context.Context, key string) ([]store.BackupInfo, error) {
	ids, err := b.client.ZRevRange(ctx, BackupIndexKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	if len(ids) == 0 {
		return []store.BackupInfo{}, nil
	}

	pipe := b.client.Pipeline()
	sizes := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		sizes[i] = pipe.StrLen(ctx, BackupKey(key, id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to stat backups: %w", err)
	}

	out := make([]store.BackupInfo, 0, len(ids))
	for i, id := range ids {
		takenAt, err := parseBackupID(id)
		if err != nil {
			// Skip index entries that weren't written by this backend
			continue
		}
		out = append(out, store.BackupInfo{Key: key, ID: id, TakenAt: takenAt, Size: sizes[i].Val()})
	}
	return out, nil
}

// ReadBackup retrieves one backup payload
func (b *Backend) ReadBackup(ctx context.Context, key, id string) ([]byte, error) {
	if _, err := parseBackupID(id); err != nil {
		return nil, err
	}
	data, err := b.client.Get(ctx, BackupKey(key, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get backup: %w", err)
	}
	return data, nil
}

// DeleteBackup removes a backup payload and its index entry
func (b *Backend) DeleteBackup(ctx context.Context, key, id string) error {
	if _, err := parseBackupID(id); err != nil {
		return err
	}

	var del *redis.IntCmd
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, BackupKey(key, id))
		pipe.ZRem(ctx, BackupIndexKey(key), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete backup: %w", err)
	}
	if del.Val() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Ping checks the server answers and accepts writes
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.client.Set(ctx, KeyPing, time.Now().UTC().Format(time.RFC3339), time.Minute).Err(); err != nil {
		return fmt.Errorf("redis not writable: %w", err)
	}
	return nil
}

func parseBackupID(id string) (time.Time, error) {
	nanos, err := strconv.ParseInt(id, 10, 64)
	if err != nil || nanos <= 0 {
		return time.Time{}, fmt.Errorf("invalid backup id %q", id)
	}
	return time.Unix(0, nanos).UTC(), nil
}
