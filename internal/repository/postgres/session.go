package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mzaikin/dbportal/internal/model"
)

var _ model.SessionStore = (*SessionRepository)(nil)

type SessionRepository struct {
	db *Connection
}

func NewSessionRepository(db *Connection) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, csrf_token, auth_token, ip, user_agent,
	created_at, last_activity_at, vault_granted_at`

func scanSession(row pgx.Row) (model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID, &s.UserID, &s.CSRFToken, &s.AuthToken, &s.IP, &s.UserAgent,
		&s.CreatedAt, &s.LastActivityAt, &s.VaultGrantedAt,
	)
	return s, err
}

func (r *SessionRepository) Create(ctx context.Context, session model.Session) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `INSERT INTO sessions (` + sessionColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		session.ID, session.UserID, session.CSRFToken, session.AuthToken,
		session.IP, session.UserAgent, session.CreatedAt,
		session.LastActivityAt, session.VaultGrantedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to create session: %w", err))
	}
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (model.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`

	s, err := scanSession(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Session{}, model.ErrNotFound
		}
		return model.Session{}, mapError(fmt.Errorf("failed to get session by id: %w", err))
	}
	return s, nil
}

// Rotate inserts the replacement session and drops the old row in one
// transaction, so the old cookie value stops resolving the instant the new
// one exists.
func (r *SessionRepository) Rotate(ctx context.Context, oldID string, session model.Session) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	insert := `INSERT INTO sessions (` + sessionColumns + `)
			   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if _, err := tx.Exec(ctx, insert,
		session.ID, session.UserID, session.CSRFToken, session.AuthToken,
		session.IP, session.UserAgent, session.CreatedAt,
		session.LastActivityAt, session.VaultGrantedAt,
	); err != nil {
		return mapError(fmt.Errorf("failed to insert rotated session: %w", err))
	}

	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, oldID); err != nil {
		return mapError(fmt.Errorf("failed to drop old session: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("failed to commit session rotation: %w", err))
	}
	return nil
}

func (r *SessionRepository) Touch(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `UPDATE sessions SET last_activity_at = $2 WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, at); err != nil {
		return mapError(fmt.Errorf("failed to touch session: %w", err))
	}
	return nil
}

func (r *SessionRepository) GrantVault(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `UPDATE sessions SET vault_granted_at = $2 WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, at); err != nil {
		return mapError(fmt.Errorf("failed to grant vault access: %w", err))
	}
	return nil
}

// ExpireVault clears a stale grant with a single conditional UPDATE. Two
// concurrent checks cannot both observe the expiry: only the statement that
// actually cleared the column reports true.
func (r *SessionRepository) ExpireVault(ctx context.Context, id string, ttl time.Duration, now time.Time) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        UPDATE sessions SET vault_granted_at = NULL
        WHERE id = $1 AND vault_granted_at IS NOT NULL AND vault_granted_at <= $2
    `

	tag, err := r.db.Exec(ctx, query, id, now.Add(-ttl))
	if err != nil {
		return false, mapError(fmt.Errorf("failed to expire vault grant: %w", err))
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `DELETE FROM sessions WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return mapError(fmt.Errorf("failed to delete session: %w", err))
	}
	return nil
}
