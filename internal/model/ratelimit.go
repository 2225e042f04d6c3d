package model

import (
	"context"
	"time"
)

// Rate limit purposes. Counters for different purposes are fully disjoint,
// even for the same subject.
const (
	RateLimitLogin  = "login"
	RateLimitUnlock = "vault-unlock"
)

// RateLimitStore persists attempt counters keyed by (subject, purpose).
// Record must be atomic per key at the store level: a single statement that
// resets an expired window or increments the live one, never a
// read-then-write in application code.
type RateLimitStore interface {
	Get(ctx context.Context, subject, purpose string) (RateLimit, error)
	// Record counts one attempt and returns the resulting counter state.
	// window is the configured window length used to decide reset.
	Record(ctx context.Context, subject, purpose string, window time.Duration, now time.Time) (RateLimit, error)
	Reset(ctx context.Context, subject, purpose string) error
}

// RateLimit is a stored attempt counter.
type RateLimit struct {
	Subject     string
	Purpose     string
	Attempts    int
	WindowStart time.Time
}

// RateLimitPolicy configures one limiter instance.
type RateLimitPolicy struct {
	Purpose     string
	MaxAttempts int
	Window      time.Duration
}
