package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/promobot/internal/archive"
	"github.com/MrSnakeDoc/promobot/internal/config"
	"github.com/MrSnakeDoc/promobot/internal/extract"
	"github.com/MrSnakeDoc/promobot/internal/generate"
	"github.com/MrSnakeDoc/promobot/internal/httpserver"
	"github.com/MrSnakeDoc/promobot/internal/httpserver/deps"
	"github.com/MrSnakeDoc/promobot/internal/index"
	"github.com/MrSnakeDoc/promobot/internal/logger"
	"github.com/MrSnakeDoc/promobot/internal/pipeline"
	"github.com/MrSnakeDoc/promobot/internal/platform"
	"github.com/MrSnakeDoc/promobot/internal/ratelimit"
	"github.com/MrSnakeDoc/promobot/internal/redis"
	"github.com/MrSnakeDoc/promobot/internal/scheduler"
	"github.com/MrSnakeDoc/promobot/internal/store"
	redisstore "github.com/MrSnakeDoc/promobot/internal/store/redis"
	"github.com/MrSnakeDoc/promobot/internal/utils"
	"github.com/MrSnakeDoc/promobot/internal/version"
)

type App struct {
	cfg            *config.Config
	logger         logger.Logger
	store          *store.Store
	redisClient    *goredis.Client
	styles         *index.StyleIndex
	stylesReloader *scheduler.StylesReloader
	reloadTrigger  chan struct{}
	pruner         *scheduler.BackupPruner
	service        *pipeline.Service
}

// New wires every component from cfg. It connects to the storage backend and
// loads the style catalog, so a returned App is ready to serve requests.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: loggerClient}

	backend, err := a.openBackend(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store.New(backend, loggerClient.Named("store"), store.Options{
		CacheTTL:    cfg.CacheTTL,
		BackupEvery: cfg.BackupEvery,
		MaxBackups:  cfg.MaxBackups,
	})
	loggerClient.Info("💾 store ready", logger.String("backend", a.store.BackendName()))

	// Style catalog, loaded once now and kept fresh by the reloader in Run.
	a.styles = index.NewStyleIndex()
	a.reloadTrigger = make(chan struct{}, 1)
	a.stylesReloader = scheduler.NewStylesReloader(
		cfg.StylesFile,
		a.styles,
		loggerClient,
		cfg.StylesReloadInterval,
		a.reloadTrigger,
	)
	if err := a.stylesReloader.Reload(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load styles: %w", err)
	}

	var archiver store.Archiver
	if cfg.ArchiveBucket != "" {
		s3, err := archive.NewS3(ctx, archive.Config{
			Bucket:    cfg.ArchiveBucket,
			Prefix:    cfg.ArchivePrefix,
			Region:    cfg.ArchiveRegion,
			Endpoint:  cfg.ArchiveEndpoint,
			AccessKey: cfg.ArchiveAccessKey,
			SecretKey: cfg.ArchiveSecretKey,
		}, loggerClient)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to configure backup archive: %w", err)
		}
		archiver = s3
		loggerClient.Info("backups are archived before pruning",
			logger.String("bucket", cfg.ArchiveBucket))
	}
	a.pruner = scheduler.NewBackupPruner(a.store, archiver, loggerClient, cfg.BackupPruneInterval, cfg.BackupMaxAge)

	// Collaborators
	guard := extract.NewGuard(nil)
	creds := platform.NewCredentials(cfg.Secrets())
	publishers := platform.NewRegistry(
		platform.NewTelegram(platform.TelegramConfig{
			APIURL: cfg.TelegramAPIURL,
			RPS:    cfg.TelegramRPS,
		}, creds, loggerClient),
		platform.NewMastodon(platform.MastodonConfig{
			Instance:  cfg.MastodonInstance,
			MaxLength: cfg.MastodonLimit,
		}, creds, loggerClient),
	)

	// PROMO_RETRY_MAX=0 means no retries; the pipeline reads 0 as "default".
	maxRetries := cfg.RetryMax
	if maxRetries == 0 {
		maxRetries = -1
	}

	a.service = pipeline.New(pipeline.Deps{
		Store:    a.store,
		Inbound:  ratelimit.NewInbound(cfg.RateLimitRequests, cfg.RateLimitWindow),
		Outbound: ratelimit.NewOutbound(cfg.PostLimit, cfg.PostWindow),
		Guard:    guard,
		Extractor: extract.NewHTMLExtractor(guard, extract.Config{
			Timeout: cfg.FetchTimeout,
		}, loggerClient),
		Generator: generate.NewOpenAI(generate.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.GenerateTimeout,
		}, loggerClient),
		Styles:     a.styles,
		Publishers: publishers,
		Logger:     loggerClient.Named("pipeline"),
	}, pipeline.Config{
		MaxProducts:  cfg.MaxProducts,
		HistoryLimit: cfg.HistoryLimit,
		MaxRetries:   maxRetries,
		RetryBase:    cfg.RetryBase,
	})

	return a, nil
}

func (a *App) openBackend(ctx context.Context) (store.Backend, error) {
	switch a.cfg.StoreBackend {
	case config.BackendRedis:
		// Fail fast if Redis never comes up.
		a.logger.Infof("Connecting to Redis at %s", a.cfg.RedisAddr)
		client, err := redis.New(ctx, redis.ConnectOptions{
			Addr:           a.cfg.RedisAddr,
			User:           a.cfg.RedisUser,
			Password:       a.cfg.RedisPassword,
			DB:             a.cfg.RedisDB,
			DialTimeout:    a.cfg.RedisDT,
			ReadTimeout:    a.cfg.RedisRT,
			WriteTimeout:   a.cfg.RedisWT,
			PoolSize:       a.cfg.RedisPoolSize,
			ConnectTimeout: a.cfg.RedisConnectTimeout,
			RetryInterval:  a.cfg.RedisRetryInterval,
			MaxWait:        a.cfg.RedisMaxWait,
			PingTimeout:    a.cfg.RedisPingTimeout,
			WarnThreshold:  a.cfg.RedisWarnThreshold,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redisClient = client
		return redisstore.NewBackend(client), nil
	default:
		backend, err := store.NewFileBackend(a.cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open data dir: %w", err)
		}
		return backend, nil
	}
}

// Service is the pipeline every command goes through.
func (a *App) Service() *pipeline.Service { return a.service }

// Store is the document store, used directly only for read-only reports.
func (a *App) Store() *store.Store { return a.store }

// Pruner removes old backups on demand.
func (a *App) Pruner() *scheduler.BackupPruner { return a.pruner }

// Styles is the loaded prompt style catalog.
func (a *App) Styles() *index.StyleIndex { return a.styles }

// Run starts the schedulers and, when enabled, the dashboard, then blocks
// until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("🚀 Starting " + version.String())

	if err := a.stylesReloader.Start(ctx); err != nil {
		return fmt.Errorf("failed to start styles reloader: %w", err)
	}
	a.logger.Info("styles reloader started",
		logger.Duration("interval", a.cfg.StylesReloadInterval))
	defer a.stylesReloader.Stop()

	if err := a.pruner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start backup pruner: %w", err)
	}
	a.logger.Info("backup pruner started",
		logger.Duration("interval", a.cfg.BackupPruneInterval),
		logger.Duration("max_age", a.cfg.BackupMaxAge))
	defer a.pruner.Stop()

	if !a.cfg.DashboardEnabled {
		a.logger.Info("dashboard disabled, waiting for shutdown")
		<-ctx.Done()
		a.logger.Info("⏳ Shutting down gracefully...")
		return nil
	}

	// Dependencies passed to routes; the dashboard only ever reads.
	d := deps.Deps{
		Logger:        a.logger,
		StartTime:     time.Now(),
		Version:       version.Version,
		Commit:        version.Commit,
		BuildDate:     version.BuildDate,
		GoVersion:     version.GoVersion,
		TimeNow:       time.Now,
		AllowedHosts:  a.cfg.AllowedHosts,
		AllowedCIDRS:  a.cfg.AllowedCIDRS,
		TrustProxy:    a.cfg.TrustProxy,
		Store:         a.store,
		Ping:          a.store.Ping,
		BackendName:   a.store.BackendName(),
		Styles:        a.styles,
		ReloadTrigger: a.reloadTrigger,
	}
	server := httpserver.New(a.cfg.ListenPort, a.logger.Named("http"), d)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

// Close releases the storage connection.
func (a *App) Close() {
	if a.redisClient != nil {
		utils.CloseLogged(a.redisClient, a.logger, "redis")
	}
	_ = a.logger.Sync()
}
