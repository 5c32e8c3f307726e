package scheduler

import (
	"context"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/logger"
	"github.com/MrSnakeDoc/promobot/internal/metrics"
	"github.com/MrSnakeDoc/promobot/internal/store"
)

const (
	// DefaultBackupMaxAge is how long a backup is kept before it is pruned
	DefaultBackupMaxAge = 7 * 24 * time.Hour
)

// BackupPruner deletes document backups older than a maximum age, archiving
// them first when an archiver is configured.
type BackupPruner struct {
	store    *store.Store
	archiver store.Archiver
	logger   logger.Logger
	interval time.Duration
	maxAge   time.Duration
	now      func() time.Time
	stopCh   chan struct{}
}

// NewBackupPruner creates a new backup pruner. archiver may be nil.
func NewBackupPruner(
	st *store.Store,
	archiver store.Archiver,
	log logger.Logger,
	interval time.Duration,
	maxAge time.Duration,
) *BackupPruner {
	if maxAge == 0 {
		maxAge = DefaultBackupMaxAge
	}

	return &BackupPruner{
		store:    st,
		archiver: archiver,
		logger:   log,
		interval: interval,
		maxAge:   maxAge,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start prunes once, then periodically
func (bp *BackupPruner) Start(ctx context.Context) error {
	if _, err := bp.Prune(ctx); err != nil {
		bp.logger.Warn("initial backup pruning failed",
			logger.Error(err))
	}

	if bp.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(bp.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := bp.Prune(ctx); err != nil {
					bp.logger.Error("backup pruning failed",
						logger.Error(err))
				}
			case <-bp.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the pruner
func (bp *BackupPruner) Stop() {
	close(bp.stopCh)
}

// Prune removes backups older than maxAge and returns how many were removed.
func (bp *BackupPruner) Prune(ctx context.Context) (int, error) {
	cutoff := bp.now().Add(-bp.maxAge)
	bp.logger.Debug("pruning old backups",
		logger.Time("cutoff", cutoff),
		logger.Bool("archive", bp.archiver != nil))

	pruned, err := bp.store.PruneBackups(ctx, cutoff, bp.archiver)
	metrics.BackupsPruned.Add(float64(pruned))

	if pruned > 0 {
		bp.logger.Info("🧹 old backups pruned",
			logger.Int("count", pruned),
			logger.Duration("max_age", bp.maxAge))
	} else {
		bp.logger.Debug("no backups to prune")
	}
	return pruned, err
}
