package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendFile  = "file"
	BackendRedis = "redis"
)

type Config struct {
	ListenPort       string        // ex: ":8080"
	ShutdownTimeout  time.Duration // ex: 5s
	DashboardEnabled bool          // serve the read-only dashboard

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Store
	DataDir             string        // directory holding users.json, stats.json and backups/
	StoreBackend        string        // "file" | "redis"
	CacheTTL            time.Duration // how long a loaded document is served from memory
	BackupEvery         int           // back up every Nth mutation of a document (0 = off)
	MaxBackups          int           // backups kept per document
	BackupMaxAge        time.Duration // backups older than this are pruned
	BackupPruneInterval time.Duration // how often the pruner runs

	// Pipeline
	MaxProducts       int           // products per identity
	HistoryLimit      int           // post history entries kept per identity
	RateLimitRequests int           // inbound actions per window, per action class
	RateLimitWindow   time.Duration // inbound window
	PostLimit         int           // outbound posts per window, per platform
	PostWindow        time.Duration // outbound window
	RetryMax          int           // publish retries after the first attempt
	RetryBase         time.Duration // first backoff delay, doubled per retry

	// Collaborators
	TelegramToken    string
	TelegramAPIURL   string
	TelegramRPS      float64
	MastodonInstance string // ex: "https://mastodon.social"
	MastodonToken    string
	MastodonLimit    int // status length limit of the instance
	OpenAIAPIKey     string
	OpenAIBaseURL    string
	OpenAIModel      string
	GenerateTimeout  time.Duration
	FetchTimeout     time.Duration

	// Styles
	StylesFile           string        // optional, empty = built-in catalog
	StylesReloadInterval time.Duration // 0 = reload only on demand

	// Redis (only with StoreBackend=redis)
	RedisAddr           string        // ex: "localhost:6379"
	RedisUser           string        // optional
	RedisPassword       string        // optional
	RedisDB             int           // Redis DB number
	RedisDT             time.Duration // Redis dial timeout (ex: 5s)
	RedisRT             time.Duration // Redis read timeout (ex: 3s)
	RedisWT             time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait        time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout    time.Duration // timeout for each ping attempt (ex: 5s)
	RedisPoolSize       int           // Redis connection pool size
	RedisConnectTimeout time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval  time.Duration // Initial wait between retries (ex: 2s, grows exponentially)
	RedisWarnThreshold  int           // warn after this many attempts

	// Backup archive (optional, empty bucket = no archiving)
	ArchiveBucket    string
	ArchivePrefix    string
	ArchiveRegion    string
	ArchiveEndpoint  string // ex: "http://127.0.0.1:9000" for MinIO
	ArchiveAccessKey string
	ArchiveSecretKey string

	AllowedHosts []string // optional, restrict access to specific Host headers
	AllowedCIDRS []string // optional, restrict access to specific IP (e.g. "1.2.3.4, 5.6.7.8")
	TrustProxy   bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
}

// Load reads the configuration from the environment. Values from a .env file
// in the working directory (or PROMO_ENV_FILE) fill variables that are not
// already set.
func Load() *Config {
	loadDotEnv(getenv("PROMO_ENV_FILE", ".env"))

	cfg := &Config{
		// Server settings
		ListenPort:       getenv("PROMO_LISTEN_PORT", ":8080"),
		ShutdownTimeout:  mustDuration("PROMO_SHUTDOWN_TIMEOUT", 5*time.Second),
		DashboardEnabled: mustBool("PROMO_DASHBOARD_ENABLED", true),

		// Logging
		LogLevel:  getenv("PROMO_LOG_LEVEL", "info"),
		PrettyLog: mustBool("PROMO_PRETTY_LOG", true),

		// Store
		DataDir:             getenv("PROMO_DATA_DIR", "data"),
		StoreBackend:        strings.ToLower(getenv("PROMO_STORE_BACKEND", BackendFile)),
		CacheTTL:            mustDuration("PROMO_CACHE_TTL", 10*time.Minute),
		BackupEvery:         getenvInt("PROMO_BACKUP_EVERY", 1),
		MaxBackups:          getenvInt("PROMO_MAX_BACKUPS", 3),
		BackupMaxAge:        mustDuration("PROMO_BACKUP_MAX_AGE", 7*24*time.Hour),
		BackupPruneInterval: mustDuration("PROMO_BACKUP_PRUNE_INTERVAL", 24*time.Hour),

		// Pipeline
		MaxProducts:       getenvInt("PROMO_MAX_PRODUCTS", 5),
		HistoryLimit:      getenvInt("PROMO_HISTORY_LIMIT", 50),
		RateLimitRequests: getenvInt("PROMO_RATE_LIMIT_REQUESTS", 10),
		RateLimitWindow:   mustDuration("PROMO_RATE_LIMIT_WINDOW", 60*time.Second),
		PostLimit:         getenvInt("PROMO_POST_LIMIT", 5),
		PostWindow:        mustDuration("PROMO_POST_WINDOW", 5*time.Minute),
		RetryMax:          getenvInt("PROMO_RETRY_MAX", 2),
		RetryBase:         mustDuration("PROMO_RETRY_BASE", time.Second),

		// Collaborators
		TelegramToken:    getenv("PROMO_TELEGRAM_TOKEN", ""),
		TelegramAPIURL:   getenv("PROMO_TELEGRAM_API_URL", "https://api.telegram.org"),
		TelegramRPS:      getenvFloat("PROMO_TELEGRAM_RPS", 25),
		MastodonInstance: getenv("PROMO_MASTODON_INSTANCE", ""),
		MastodonToken:    getenv("PROMO_MASTODON_TOKEN", ""),
		MastodonLimit:    getenvInt("PROMO_MASTODON_LIMIT", 500),
		OpenAIAPIKey:     getenv("PROMO_OPENAI_API_KEY", ""),
		OpenAIBaseURL:    getenv("PROMO_OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:      getenv("PROMO_OPENAI_MODEL", "gpt-4o-mini"),
		GenerateTimeout:  mustDuration("PROMO_GENERATE_TIMEOUT", 30*time.Second),
		FetchTimeout:     mustDuration("PROMO_FETCH_TIMEOUT", 10*time.Second),

		// Styles
		StylesFile:           getenv("PROMO_STYLES_FILE", ""),
		StylesReloadInterval: mustDuration("PROMO_STYLES_RELOAD_INTERVAL", time.Hour),

		// Archive
		ArchiveBucket:    getenv("PROMO_ARCHIVE_BUCKET", ""),
		ArchivePrefix:    getenv("PROMO_ARCHIVE_PREFIX", "promobot"),
		ArchiveRegion:    getenv("PROMO_ARCHIVE_REGION", "us-east-1"),
		ArchiveEndpoint:  getenv("PROMO_ARCHIVE_ENDPOINT", ""),
		ArchiveAccessKey: getenv("PROMO_ARCHIVE_ACCESS_KEY", ""),
		ArchiveSecretKey: getenv("PROMO_ARCHIVE_SECRET_KEY", ""),

		// Access restrictions
		AllowedHosts: splitAndTrim(getenv("PROMO_ALLOWED_HOSTS", "")),
		AllowedCIDRS: splitAndTrim(getenv("PROMO_ALLOWED_CIDRS", "")),
		TrustProxy:   mustBool("PROMO_TRUST_PROXY", false),
	}

	switch cfg.StoreBackend {
	case BackendFile:
	case BackendRedis:
		cfg.RedisAddr = requireEnv("PROMO_REDIS_ADDR")
		cfg.RedisUser = getenv("PROMO_REDIS_USERNAME", "")
		cfg.RedisPassword = getenv("PROMO_REDIS_PASSWORD", "")
		cfg.RedisDB = requireEnvInt("PROMO_REDIS_DB")
		cfg.RedisDT = mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second)
		cfg.RedisRT = mustDuration("REDIS_READ_TIMEOUT", 3*time.Second)
		cfg.RedisWT = mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second)
		cfg.RedisMaxWait = mustDuration("REDIS_MAX_WAIT", 10*time.Second)
		cfg.RedisPingTimeout = mustDuration("REDIS_PING_TIMEOUT", 5*time.Second)
		cfg.RedisPoolSize = getenvInt("REDIS_POOL_SIZE", 10)
		cfg.RedisConnectTimeout = mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second)
		cfg.RedisRetryInterval = mustDuration("REDIS_RETRY_INTERVAL", 2*time.Second)
		cfg.RedisWarnThreshold = getenvInt("REDIS_WARN_THRESHOLD", 3)
	default:
		panic(fmt.Sprintf("❌ FATAL: PROMO_STORE_BACKEND must be %q or %q, got %q", BackendFile, BackendRedis, cfg.StoreBackend))
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		log.Printf("[DEBUG] cfg: %+v\n", cfg.Redacted())
	}

	return cfg
}

// Secrets returns the named secrets credentials references may point to.
func (c *Config) Secrets() map[string]string {
	return map[string]string{
		"telegram": c.TelegramToken,
		"mastodon": c.MastodonToken,
	}
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	cp := *c
	for _, s := range []*string{
		&cp.TelegramToken,
		&cp.MastodonToken,
		&cp.OpenAIAPIKey,
		&cp.RedisPassword,
		&cp.ArchiveAccessKey,
		&cp.ArchiveSecretKey,
	} {
		if *s != "" {
			*s = "***REDACTED***"
		}
	}
	return cp
}

// helpers
func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		panic(fmt.Sprintf("❌ FATAL: failed to parse %s: %v", path, err))
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func requireEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	return v
}

func requireEnvInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		panic(fmt.Sprintf("❌ FATAL: Required environment variable %s is not set", key))
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		panic(fmt.Sprintf("❌ FATAL: Invalid integer value for %s: %s", key, v))
	}
	return i
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
