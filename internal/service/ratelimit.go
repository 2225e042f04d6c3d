package service

import (
	"context"
	"fmt"
	"time"

	"github.com/mzaikin/dbportal/internal/model"
)

// Limiter is a generic keyed attempt counter over an atomic store. Two
// instances run in the server, one per purpose; their counters never mix.
type Limiter struct {
	store  model.RateLimitStore
	policy model.RateLimitPolicy
}

func NewLimiter(store model.RateLimitStore, policy model.RateLimitPolicy) *Limiter {
	return &Limiter{store: store, policy: policy}
}

// Reserve counts the attempt and decides admission off the same atomic
// store statement, so two concurrent attempts at the window boundary can
// never both be admitted. The attempt is rejected with a RateLimitedError
// carrying the remaining cooldown once the window holds more than
// MaxAttempts. Callers reset on success; counts never decrement otherwise.
func (l *Limiter) Reserve(ctx context.Context, subject string) (model.RateLimit, error) {
	now := time.Now()
	rl, err := l.store.Record(ctx, subject, l.policy.Purpose, l.policy.Window, now)
	if err != nil {
		return model.RateLimit{}, fmt.Errorf("failed to record attempt: %w", err)
	}
	if rl.Attempts > l.policy.MaxAttempts {
		return rl, &model.RateLimitedError{
			RetryAfter: l.policy.Window - now.Sub(rl.WindowStart),
		}
	}
	return rl, nil
}

// Reset clears the subject's counter. Called on success only; counts never
// decrement otherwise.
func (l *Limiter) Reset(ctx context.Context, subject string) error {
	if err := l.store.Reset(ctx, subject, l.policy.Purpose); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

// Policy returns the limiter's configuration.
func (l *Limiter) Policy() model.RateLimitPolicy {
	return l.policy
}
