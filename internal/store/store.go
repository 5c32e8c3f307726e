// Package store is the only component that reads or writes persisted
// documents. All writes go through Mutate, which serializes changes per
// document, commits them atomically and keeps a rotating set of backups used
// to recover from a corrupted primary.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/codec"
	"github.com/MrSnakeDoc/promobot/internal/domain"
	"github.com/MrSnakeDoc/promobot/internal/logger"
	"github.com/MrSnakeDoc/promobot/internal/metrics"
)

const (
	DefaultCacheTTL   = 10 * time.Minute
	DefaultMaxBackups = 3
)

// Options tunes caching and the backup policy.
type Options struct {
	CacheTTL time.Duration // <= 0 keeps cached documents until the next commit
	// BackupEvery backs up the previous committed value on every Nth mutation
	// of a document. 1 backs up every write, 0 disables backups.
	BackupEvery int
	MaxBackups  int
	Now         func() time.Time
}

// Reader is the read-only view handed to consumers that must never write,
// such as the dashboard.
type Reader interface {
	Load(ctx context.Context, key domain.DocumentKey) (domain.Document, error)
}

// Updater produces the next value of a document. It receives a private copy,
// must be fast and must not block on I/O. Returning an error aborts the
// mutation with nothing written.
type Updater func(doc domain.Document) (domain.Document, error)

// Archiver receives backups before they are pruned.
type Archiver interface {
	Archive(ctx context.Context, info BackupInfo, data []byte) error
}

type docState struct {
	mu     sync.Mutex
	writes int
}

// Store manages the users and stats documents on top of a Backend.
type Store struct {
	backend Backend
	logger  logger.Logger
	opts    Options
	cache   *documentCache

	mu     sync.Mutex
	states map[domain.DocumentKey]*docState
}

func New(backend Backend, log logger.Logger, opts Options) *Store {
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = DefaultMaxBackups
	}
	if opts.BackupEvery < 0 {
		opts.BackupEvery = 0
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		backend: backend,
		logger:  log,
		opts:    opts,
		cache:   newDocumentCache(opts.CacheTTL),
		states:  make(map[domain.DocumentKey]*docState),
	}
}

func (s *Store) now() time.Time { return s.opts.Now().UTC() }

func (s *Store) state(key domain.DocumentKey) *docState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[key]
	if !ok {
		st = &docState{}
		s.states[key] = st
	}
	return st
}

// Load returns a private copy of the current committed document. A primary
// that fails to decode is replaced by the newest decodable backup, or by an
// empty document when none is left.
func (s *Store) Load(ctx context.Context, key domain.DocumentKey) (domain.Document, error) {
	if e, ok := s.cache.get(key, s.now()); ok {
		return e.doc.Clone(), nil
	}

	rev := s.cache.rev(key)
	e, err := s.read(ctx, key)
	if err == nil {
		s.cache.fill(key, e, rev)
		return e.doc.Clone(), nil
	}

	var decErr *codec.DecodeError
	if !errors.As(err, &decErr) {
		return nil, err
	}

	st := s.state(key)
	st.mu.Lock()
	e, events, err := s.currentLocked(ctx, key)
	st.mu.Unlock()
	s.report(ctx, events)
	if err != nil {
		return nil, err
	}
	return e.doc.Clone(), nil
}

// Mutate applies fn to the committed value of key and commits the result.
// It is all-or-nothing: on any error the committed value and the cache are
// unchanged. Once the lock is taken the write runs to completion even if ctx
// is cancelled.
func (s *Store) Mutate(ctx context.Context, key domain.DocumentKey, fn Updater) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	st := s.state(key)
	var events []string
	doc, err := func() (domain.Document, error) {
		st.mu.Lock()
		defer st.mu.Unlock()

		cur, ev, err := s.currentLocked(ctx, key)
		events = ev
		if err != nil {
			return nil, err
		}

		next, err := fn(cur.doc.Clone())
		if err != nil {
			metrics.StoreMutations.WithLabelValues(string(key), "aborted").Inc()
			return nil, err
		}
		if next == nil || next.Key() != key {
			metrics.StoreMutations.WithLabelValues(string(key), "aborted").Inc()
			return nil, fmt.Errorf("updater for %s returned an invalid document", key)
		}

		start := time.Now()
		if err := s.commitLocked(ctx, st, key, cur, next); err != nil {
			metrics.StoreMutations.WithLabelValues(string(key), "write_error").Inc()
			s.logger.Error("document write failed",
				logger.String("document", string(key)),
				logger.Error(err))
			return nil, err
		}
		metrics.StoreWriteSeconds.WithLabelValues(string(key)).Observe(time.Since(start).Seconds())
		metrics.StoreMutations.WithLabelValues(string(key), "ok").Inc()
		return next.Clone(), nil
	}()
	s.report(ctx, events)
	return doc, err
}

func (s *Store) commitLocked(ctx context.Context, st *docState, key domain.DocumentKey, cur entry, next domain.Document) error {
	data, err := codec.Encode(next)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}

	n := st.writes + 1
	if cur.persisted && s.opts.BackupEvery > 0 && n%s.opts.BackupEvery == 0 {
		if _, err := s.backend.WriteBackup(ctx, string(key), cur.raw, s.now()); err != nil {
			return &StorageWriteError{Key: key, Op: "backup", Err: err}
		}
		s.rotateLocked(ctx, key)
	}

	if err := s.backend.Write(ctx, string(key), data); err != nil {
		return &StorageWriteError{Key: key, Op: "write", Err: err}
	}

	st.writes = n
	s.cache.commit(key, entry{doc: next, raw: data, persisted: true, loadedAt: s.now()})
	return nil
}

// rotateLocked keeps only the newest MaxBackups backups of key.
func (s *Store) rotateLocked(ctx context.Context, key domain.DocumentKey) {
	backups, err := s.backend.ListBackups(ctx, string(key))
	if err != nil {
		s.logger.Warn("failed to list backups for rotation",
			logger.String("document", string(key)),
			logger.Error(err))
		return
	}
	for i := s.opts.MaxBackups; i < len(backups); i++ {
		if err := s.backend.DeleteBackup(ctx, string(key), backups[i].ID); err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Warn("failed to drop old backup",
				logger.String("document", string(key)),
				logger.String("backup", backups[i].ID),
				logger.Error(err))
		}
	}
}

// read loads key from the backend without touching the cache.
func (s *Store) read(ctx context.Context, key domain.DocumentKey) (entry, error) {
	data, err := s.backend.Read(ctx, string(key))
	if errors.Is(err, ErrNotFound) {
		doc, err := domain.NewDocument(key)
		if err != nil {
			return entry{}, err
		}
		return entry{doc: doc, loadedAt: s.now()}, nil
	}
	if err != nil {
		return entry{}, fmt.Errorf("failed to read %s: %w", key, err)
	}

	doc, err := codec.Decode(key, data)
	if err != nil {
		return entry{}, err
	}
	return entry{doc: doc, raw: data, persisted: true, loadedAt: s.now()}, nil
}

// currentLocked returns the committed value of key, recovering from backups
// when the primary is undecodable. The caller holds the document lock. The
// returned events are error kinds to count once the lock is released.
func (s *Store) currentLocked(ctx context.Context, key domain.DocumentKey) (entry, []string, error) {
	if e, ok := s.cache.get(key, s.now()); ok {
		return e, nil, nil
	}

	e, err := s.read(ctx, key)
	if err == nil {
		s.cache.commit(key, e)
		return e, nil, nil
	}

	var decErr *codec.DecodeError
	if !errors.As(err, &decErr) {
		return entry{}, nil, err
	}
	return s.recoverLocked(ctx, key, decErr)
}

func (s *Store) recoverLocked(ctx context.Context, key domain.DocumentKey, cause error) (entry, []string, error) {
	s.logger.Warn("primary document failed to decode, trying backups",
		logger.String("document", string(key)),
		logger.Error(cause))

	backups, err := s.backend.ListBackups(ctx, string(key))
	if err != nil {
		s.logger.Warn("failed to list backups",
			logger.String("document", string(key)),
			logger.Error(err))
	}

	for _, b := range backups {
		data, err := s.backend.ReadBackup(ctx, string(key), b.ID)
		if err != nil {
			s.logger.Warn("failed to read backup",
				logger.String("backup", b.ID),
				logger.Error(err))
			continue
		}
		doc, err := codec.Decode(key, data)
		if err != nil {
			s.logger.Warn("backup failed to decode",
				logger.String("backup", b.ID),
				logger.Error(err))
			continue
		}

		if err := s.backend.Write(ctx, string(key), data); err != nil {
			s.logger.Warn("failed to restore primary from backup",
				logger.String("document", string(key)),
				logger.Error(err))
		}
		e := entry{doc: doc, raw: data, persisted: true, loadedAt: s.now()}
		s.cache.commit(key, e)

		metrics.StoreRecoveries.WithLabelValues(string(key), "backup").Inc()
		s.logger.Warn("document recovered from backup",
			logger.String("document", string(key)),
			logger.String("backup", b.ID),
			logger.Time("taken_at", b.TakenAt))
		return e, []string{domain.ErrorKindDecode}, nil
	}

	lost := &CorruptDocumentError{Key: key, Backups: len(backups), Err: cause}
	s.logger.Error("document lost, continuing with an empty document",
		logger.String("document", string(key)),
		logger.Error(lost))

	doc, err := domain.NewDocument(key)
	if err != nil {
		return entry{}, nil, err
	}
	e := entry{doc: doc, loadedAt: s.now(), sticky: true}
	s.cache.commit(key, e)
	metrics.StoreRecoveries.WithLabelValues(string(key), "default").Inc()
	return e, []string{domain.ErrorKindCorruptDocument}, nil
}

// report counts recovery events in the stats document.
func (s *Store) report(ctx context.Context, kinds []string) {
	for _, kind := range kinds {
		if err := s.RecordError(ctx, kind); err != nil {
			s.logger.Warn("failed to record error event",
				logger.String("kind", kind),
				logger.Error(err))
		}
	}
}

// Invalidate drops the cached copy of key.
func (s *Store) Invalidate(key domain.DocumentKey) {
	s.cache.invalidate(key)
}

// Backups lists the backups of key, newest first.
func (s *Store) Backups(ctx context.Context, key domain.DocumentKey) ([]BackupInfo, error) {
	return s.backend.ListBackups(ctx, string(key))
}

// PruneBackups deletes backups older than cutoff for every document. When
// archiver is not nil each backup is archived first and kept if that fails.
func (s *Store) PruneBackups(ctx context.Context, cutoff time.Time, archiver Archiver) (int, error) {
	var (
		pruned int
		errs   []error
	)
	for _, key := range domain.DocumentKeys() {
		n, err := s.pruneDocument(ctx, key, cutoff, archiver)
		pruned += n
		if err != nil {
			errs = append(errs, err)
		}
	}
	return pruned, errors.Join(errs...)
}

func (s *Store) pruneDocument(ctx context.Context, key domain.DocumentKey, cutoff time.Time, archiver Archiver) (int, error) {
	st := s.state(key)
	st.mu.Lock()
	defer st.mu.Unlock()

	backups, err := s.backend.ListBackups(ctx, string(key))
	if err != nil {
		return 0, fmt.Errorf("failed to list %s backups: %w", key, err)
	}

	pruned := 0
	for _, b := range backups {
		if !b.TakenAt.Before(cutoff) {
			continue
		}
		if archiver != nil {
			data, err := s.backend.ReadBackup(ctx, string(key), b.ID)
			if err != nil {
				return pruned, fmt.Errorf("failed to read backup %s: %w", b.ID, err)
			}
			if err := archiver.Archive(ctx, b, data); err != nil {
				return pruned, fmt.Errorf("failed to archive backup %s: %w", b.ID, err)
			}
		}
		if err := s.backend.DeleteBackup(ctx, string(key), b.ID); err != nil && !errors.Is(err, ErrNotFound) {
			return pruned, fmt.Errorf("failed to delete backup %s: %w", b.ID, err)
		}
		pruned++
	}
	return pruned, nil
}

// Ping checks the backend.
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// BackendName describes the backend for logs and status pages.
func (s *Store) BackendName() string {
	return s.backend.Name()
}
