package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mzaikin/dbportal/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

type UserRepository struct {
	db *Connection
}

func NewUserRepository(db *Connection) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

const userColumns = `id, username, email, password_hash, first_name, last_name,
	tenant_label, phone, tenant_db, created_at, updated_at, last_login_at`

func scanUser(row pgx.Row) (model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.TenantLabel, &user.Phone,
		&user.TenantDB, &user.CreatedAt, &user.UpdatedAt, &user.LastLoginAt,
	)
	return user, err
}

// Create checks uniqueness and inserts the row in one transaction so two
// concurrent registrations for the same username or email cannot both
// succeed. The unique indexes back the check up; either path reports
// model.ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user model.User) (model.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return model.User{}, mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	var taken bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 OR email = $2)`,
		user.Username, user.Email,
	).Scan(&taken)
	if err != nil {
		return model.User{}, mapError(fmt.Errorf("failed to check uniqueness: %w", err))
	}
	if taken {
		return model.User{}, model.ErrConflict
	}

	query := `INSERT INTO users (` + userColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			  RETURNING ` + userColumns

	saved, err := scanUser(tx.QueryRow(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash,
		user.FirstName, user.LastName, user.TenantLabel, user.Phone,
		user.TenantDB, user.CreatedAt, user.UpdatedAt, user.LastLoginAt,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.User{}, model.ErrConflict
		}
		return model.User{}, mapError(fmt.Errorf("failed to create user: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return model.User{}, mapError(fmt.Errorf("failed to commit user creation: %w", err))
	}

	return saved, nil
}

func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (model.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1 OR email = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, identifier))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, mapError(fmt.Errorf("failed to get user by identifier: %w", err))
	}

	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, mapError(fmt.Errorf("failed to get user by id: %w", err))
	}

	return user, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id, at); err != nil {
		return mapError(fmt.Errorf("failed to update last login: %w", err))
	}
	return nil
}

// Delete removes a user row. It exists to compensate a failed tenant
// provisioning and is not reachable from the HTTP surface.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `DELETE FROM users WHERE id = $1`

	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return mapError(fmt.Errorf("failed to delete user: %w", err))
	}
	return nil
}
