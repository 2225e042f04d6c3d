package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mzaikin/dbportal/internal/model"
)

var _ model.RateLimitStore = (*RateLimitRepository)(nil)

type RateLimitRepository struct {
	db *Connection
}

func NewRateLimitRepository(db *Connection) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

func (r *RateLimitRepository) Get(ctx context.Context, subject, purpose string) (model.RateLimit, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        SELECT subject, purpose, attempts, window_start
        FROM rate_limits WHERE subject = $1 AND purpose = $2
    `

	var rl model.RateLimit
	err := r.db.QueryRow(ctx, query, subject, purpose).Scan(
		&rl.Subject, &rl.Purpose, &rl.Attempts, &rl.WindowStart,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RateLimit{}, model.ErrNotFound
		}
		return model.RateLimit{}, mapError(fmt.Errorf("failed to get rate limit counter: %w", err))
	}
	return rl, nil
}

// Record counts one attempt in a single upsert: a fresh key starts at one,
// an expired window restarts at one, a live window increments. The whole
// decision runs inside the statement, so concurrent attempts on the same
// key serialize on the row and never lose an increment.
func (r *RateLimitRepository) Record(ctx context.Context, subject, purpose string, window time.Duration, now time.Time) (model.RateLimit, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO rate_limits (subject, purpose, attempts, window_start)
        VALUES ($1, $2, 1, $3)
        ON CONFLICT (subject, purpose) DO UPDATE SET
            attempts = CASE
                WHEN $3 - rate_limits.window_start > $4 THEN 1
                ELSE rate_limits.attempts + 1
            END,
            window_start = CASE
                WHEN $3 - rate_limits.window_start > $4 THEN $3
                ELSE rate_limits.window_start
            END
        RETURNING subject, purpose, attempts, window_start
    `

	var rl model.RateLimit
	err := r.db.QueryRow(ctx, query, subject, purpose, now, window).Scan(
		&rl.Subject, &rl.Purpose, &rl.Attempts, &rl.WindowStart,
	)
	if err != nil {
		return model.RateLimit{}, mapError(fmt.Errorf("failed to record attempt: %w", err))
	}
	return rl, nil
}

func (r *RateLimitRepository) Reset(ctx context.Context, subject, purpose string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `DELETE FROM rate_limits WHERE subject = $1 AND purpose = $2`

	if _, err := r.db.Exec(ctx, query, subject, purpose); err != nil {
		return mapError(fmt.Errorf("failed to reset rate limit counter: %w", err))
	}
	return nil
}
