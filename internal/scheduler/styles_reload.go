package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/index"
	"github.com/MrSnakeDoc/promobot/internal/logger"
	"github.com/MrSnakeDoc/promobot/internal/sources/styles"
)

// StylesReloader handles periodic reloading of the prompt style catalog
type StylesReloader struct {
	loader        *styles.Loader
	index         *index.StyleIndex
	logger        logger.Logger
	interval      time.Duration
	stopCh        chan struct{}
	manualTrigger chan struct{}
}

// NewStylesReloader creates a new styles reloader. An empty stylesFile uses
// the built-in catalog.
func NewStylesReloader(
	stylesFile string,
	idx *index.StyleIndex,
	log logger.Logger,
	interval time.Duration,
	manualTrigger chan struct{},
) *StylesReloader {
	return &StylesReloader{
		loader:        styles.NewLoader(stylesFile),
		index:         idx,
		logger:        log,
		interval:      interval,
		stopCh:        make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start loads the catalog, then reloads it periodically and on demand
func (sr *StylesReloader) Start(ctx context.Context) error {
	if err := sr.Reload(ctx); err != nil {
		return fmt.Errorf("initial reload failed: %w", err)
	}

	go func() {
		var tick <-chan time.Time
		if sr.interval > 0 {
			ticker := time.NewTicker(sr.interval)
			defer ticker.Stop()
			tick = ticker.C
		}

		for {
			select {
			case <-tick:
				if err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload styles",
						logger.Error(err))
				}
			case <-sr.manualTrigger:
				sr.logger.Info("manual reload triggered")
				if err := sr.Reload(ctx); err != nil {
					sr.logger.Error("failed to reload styles",
						logger.Error(err))
				}
			case <-sr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop stops the reloader
func (sr *StylesReloader) Stop() {
	close(sr.stopCh)
}

// Reload loads and maps the catalog, then swaps it into the index. The index
// keeps its previous content when anything fails.
func (sr *StylesReloader) Reload(_ context.Context) error {
	sr.logger.Debug("reloading styles", logger.String("source", sr.loader.Source()))

	config, err := sr.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load styles: %w", err)
	}

	list, def, err := styles.MapStyles(config)
	if err != nil {
		return fmt.Errorf("failed to map styles: %w", err)
	}

	sr.index.Update(list, def, sr.loader.Source())
	sr.logger.Info("styles loaded",
		logger.Int("count", len(list)),
		logger.String("default", def),
		logger.String("source", sr.loader.Source()))
	return nil
}
