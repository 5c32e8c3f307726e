package ratelimit

import (
	"fmt"
	"time"
)

// RateLimitedError is returned when a limiter rejects a key.
type RateLimitedError struct {
	Limiter    string
	Key        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded for %s, retry in %s", e.Limiter, e.Key, e.RetryAfter.Round(time.Second))
}
