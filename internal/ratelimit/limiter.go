// Package ratelimit bounds how often an identity may act within a sliding
// time window. State lives in memory and is reset on restart.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

const (
	DefaultInboundLimit   = 10
	DefaultInboundWindow  = 60 * time.Second
	DefaultOutboundLimit  = 5
	DefaultOutboundWindow = 5 * time.Minute
)

// Config tunes a Limiter.
type Config struct {
	Name   string // label used in metrics and errors, e.g. "inbound"
	Limit  int
	Window time.Duration
	// IdleTTL drops keys without hits for this long. Defaults to Window.
	IdleTTL       time.Duration
	MaxEntries    int
	SweepInterval time.Duration
	Now           func() time.Time
}

type window struct {
	mu   sync.Mutex
	hits []time.Time // admitted hits, oldest first
	last time.Time
	dead bool // removed by a sweep; holders must look the key up again
}

// Limiter is a sliding window counter. A key is admitted while fewer than
// Limit hits were admitted within the last Window. Rejections are not
// recorded as hits.
type Limiter struct {
	cfg Config

	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
}

func New(cfg Config) *Limiter {
	if cfg.Limit < 1 {
		cfg.Limit = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.IdleTTL < cfg.Window {
		cfg.IdleTTL = cfg.Window
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		cfg:       cfg,
		windows:   make(map[string]*window, 256),
		lastSweep: cfg.Now(),
	}
}

// NewInbound returns a limiter for commands keyed by (identity, action).
func NewInbound(limit int, win time.Duration) *Limiter {
	return New(Config{Name: "inbound", Limit: limit, Window: win, MaxEntries: 100_000})
}

// NewOutbound returns a limiter for posts keyed by (identity, platform).
func NewOutbound(limit int, win time.Duration) *Limiter {
	return New(Config{Name: "outbound", Limit: limit, Window: win, MaxEntries: 100_000})
}

func (l *Limiter) Name() string          { return l.cfg.Name }
func (l *Limiter) Limit() int            { return l.cfg.Limit }
func (l *Limiter) Window() time.Duration { return l.cfg.Window }

// Allow reports whether key may act now and, if so, records the hit.
func (l *Limiter) Allow(key string) bool {
	ok, _ := l.Reserve(key)
	return ok
}

// Reserve is Allow that also returns, on rejection, how long until the
// oldest retained hit leaves the window.
func (l *Limiter) Reserve(key string) (bool, time.Duration) {
	now := l.cfg.Now()
	w := l.acquire(key, now)
	defer w.mu.Unlock()

	cutoff := now.Add(-l.cfg.Window)
	drop := 0
	for drop < len(w.hits) && !w.hits[drop].After(cutoff) {
		drop++
	}
	w.hits = w.hits[drop:]

	if len(w.hits) >= l.cfg.Limit {
		return false, w.hits[0].Sub(cutoff)
	}
	w.hits = append(w.hits, now)
	w.last = now
	return true, 0
}

// Remaining returns how many hits key may still make in the current window.
func (l *Limiter) Remaining(key string) int {
	now := l.cfg.Now()

	l.mu.Lock()
	w := l.windows[key]
	l.mu.Unlock()
	if w == nil {
		return l.cfg.Limit
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-l.cfg.Window)
	n := 0
	for _, t := range w.hits {
		if t.After(cutoff) {
			n++
		}
	}
	return l.cfg.Limit - n
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

func (l *Limiter) window(key string, now time.Time) *window {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.cfg.SweepInterval ||
		(l.cfg.MaxEntries > 0 && len(l.windows) >= l.cfg.MaxEntries) {
		l.sweepLocked(now)
	}

	w := l.windows[key]
	if w == nil {
		w = &window{last: now}
		l.windows[key] = w
	}
	return w
}

// acquire returns the live window for key with its lock held. A window
// swept between the map lookup and the lock is discarded and looked up again.
func (l *Limiter) acquire(key string, now time.Time) *window {
	for {
		w := l.window(key, now)
		w.mu.Lock()
		if !w.dead {
			return w
		}
		w.mu.Unlock()
	}
}

func (l *Limiter) sweepLocked(now time.Time) {
	for key, w := range l.windows {
		w.mu.Lock()
		if now.Sub(w.last) > l.cfg.IdleTTL {
			w.dead = true
			delete(l.windows, key)
		}
		w.mu.Unlock()
	}
	l.lastSweep = now
}

// InboundKey keys the inbound limiter by identity and action class.
func InboundKey(id domain.Identity, action string) string {
	return fmt.Sprintf("%s|%s", id, action)
}

// OutboundKey keys the outbound limiter by identity and platform.
func OutboundKey(id domain.Identity, p domain.Platform) string {
	return fmt.Sprintf("%s|%s", id, p)
}
