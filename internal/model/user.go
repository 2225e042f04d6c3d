package model

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for users.
type UserStore interface {
	// Create checks username/email uniqueness and inserts the row inside
	// a single transaction. A duplicate returns ErrConflict.
	Create(ctx context.Context, user User) (User, error)
	// GetByIdentifier looks a user up by username or email.
	GetByIdentifier(ctx context.Context, identifier string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	// Delete removes a user row. Used only to compensate a failed tenant
	// provisioning during registration.
	Delete(ctx context.Context, id uuid.UUID) error
}

// User represents a stored user identity.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	TenantLabel  string
	Phone        string
	TenantDB     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

// TenantDBName derives the tenant database name for a user id. The name is
// a pure function of the id and is never user-chosen.
func TenantDBName(id uuid.UUID) string {
	return "tenant_" + strings.ReplaceAll(id.String(), "-", "")
}
