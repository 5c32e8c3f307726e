// Package platform defines the publish contract for outbound channels and
// ships the Telegram and Mastodon adapters.
package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrSnakeDoc/promobot/internal/domain"
)

// Kind classifies a publish failure.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindTooLong      Kind = "too-long"
	KindRateLimited  Kind = "rate-limited"
	KindServerError  Kind = "server-error"
	// KindRejected covers other client errors (unknown chat, validation).
	KindRejected Kind = "rejected"
)

// Error is a typed publish failure.
type Error struct {
	Platform domain.Platform
	Kind     Kind
	Status   int // HTTP status, 0 for transport failures
	Err      error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s publish failed (%s, status %d): %v", e.Platform, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s publish failed (%s): %v", e.Platform, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindServerError, KindRateLimited, KindTooLong:
		return true
	default:
		return false
	}
}

// KindOf returns the failure kind of err, or "" when err isn't a publish error.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

// Receipt confirms a published post.
type Receipt struct {
	RemoteID string
	URL      string
	PostedAt time.Time
}

// Publisher posts text to one platform.
type Publisher interface {
	Platform() domain.Platform
	// MaxLength is the longest text the platform accepts, in runes.
	MaxLength() int
	Publish(ctx context.Context, text string, binding domain.ChannelBinding) (Receipt, error)
}

// Registry maps platforms to their publishers.
type Registry map[domain.Platform]Publisher

// NewRegistry indexes publishers by platform.
func NewRegistry(pubs ...Publisher) Registry {
	r := make(Registry, len(pubs))
	for _, p := range pubs {
		r[p.Platform()] = p
	}
	return r
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches a key shared by every attempt of one post.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the key attached by WithIdempotencyKey.
func IdempotencyKey(ctx context.Context) string {
	key, _ := ctx.Value(idempotencyKey{}).(string)
	return key
}

// classify maps an HTTP failure to a Kind. tooLong reports whether the body
// describes a length violation.
func classify(status int, body string, tooLong func(string) bool) Kind {
	switch {
	case status == 401 || status == 403:
		return KindUnauthorized
	case status == 429:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	case tooLong(strings.ToLower(body)):
		return KindTooLong
	default:
		return KindRejected
	}
}
