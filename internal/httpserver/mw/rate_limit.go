package mw

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/MrSnakeDoc/promobot/internal/metrics"
	"github.com/MrSnakeDoc/promobot/internal/utils"
)

// RateLimitConfig sizes the per-client token bucket on the dashboard API.
type RateLimitConfig struct {
	Burst      int
	PerMinute  int
	MaxClients int           // sweep early once this many buckets exist; 0 means no cap
	IdleTTL    time.Duration // buckets unused for this long are dropped
	TrustProxy bool
	Now        func() time.Time
}

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	cfg       RateLimitConfig
	refill    rate.Limit
	mu        sync.Mutex
	clients   map[string]*clientBucket
	nextSweep time.Time
}

func newIPLimiter(cfg RateLimitConfig) *ipLimiter {
	cfg.Burst = max(cfg.Burst, 1)
	cfg.PerMinute = max(cfg.PerMinute, 1)
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ipLimiter{
		cfg:       cfg,
		refill:    rate.Limit(float64(cfg.PerMinute) / 60.0),
		clients:   make(map[string]*clientBucket),
		nextSweep: cfg.Now().Add(time.Minute),
	}
}

// take consumes one token for ip. When none is left it reports how many
// whole seconds until the next one.
func (l *ipLimiter) take(ip string, now time.Time) (remaining int, retryAfter int, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !now.Before(l.nextSweep) || (l.cfg.MaxClients > 0 && len(l.clients) >= l.cfg.MaxClients) {
		for key, b := range l.clients {
			if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
				delete(l.clients, key)
			}
		}
		l.nextSweep = now.Add(time.Minute)
	}

	b, found := l.clients[ip]
	if !found {
		b = &clientBucket{lim: rate.NewLimiter(l.refill, l.cfg.Burst)}
		l.clients[ip] = b
	}
	b.lastSeen = now

	res := b.lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return 0, max(1, int(math.Ceil(delay.Seconds()))), false
	}
	return max(int(math.Floor(b.lim.TokensAt(now))), 0), 0, true
}

// RateLimit throttles each client IP with its own token bucket and answers
// 429 with Retry-After once the bucket is empty.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	l := newIPLimiter(cfg)
	limit := strconv.Itoa(l.cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, retryAfter, ok := l.take(utils.ClientIP(r, l.cfg.TrustProxy), l.cfg.Now())
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RateLimited.WithLabelValues("http").Inc()
			h.Set("Retry-After", strconv.Itoa(retryAfter))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":       "rate_limited",
				"retry_after": retryAfter,
			})
		})
	}
}
