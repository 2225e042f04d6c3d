package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionStore persists server-side session records.
type SessionStore interface {
	Create(ctx context.Context, session Session) error
	GetByID(ctx context.Context, id string) (Session, error)
	// Rotate atomically replaces old session row with the new one. Used on
	// login success as a fixation defense.
	Rotate(ctx context.Context, oldID string, session Session) error
	Touch(ctx context.Context, id string, at time.Time) error
	// GrantVault sets the vault grant timestamp.
	GrantVault(ctx context.Context, id string, at time.Time) error
	// ExpireVault clears the vault grant if it is older than ttl. It
	// reports whether a grant was actually cleared, so the caller can
	// audit the expiry exactly once.
	ExpireVault(ctx context.Context, id string, ttl time.Duration, now time.Time) (bool, error)
	Delete(ctx context.Context, id string) error
}

// Session is a server-held session record keyed by an opaque id. UserID is
// nil for the anonymous pre-login session that carries the CSRF token.
type Session struct {
	ID             string
	UserID         *uuid.UUID
	CSRFToken      string
	AuthToken      string
	IP             string
	UserAgent      string
	CreatedAt      time.Time
	LastActivityAt time.Time
	VaultGrantedAt *time.Time
}

// Authenticated reports whether the session belongs to a logged-in user.
func (s Session) Authenticated() bool {
	return s.UserID != nil
}

// VaultUnlocked reports whether the vault grant is present and younger than
// ttl at the given instant. A session with no grant, or a stale one, is
// always Locked.
func (s Session) VaultUnlocked(ttl time.Duration, now time.Time) bool {
	if s.VaultGrantedAt == nil {
		return false
	}
	return now.Sub(*s.VaultGrantedAt) < ttl
}

// VaultRemaining returns how long the current grant is still valid, zero
// when locked.
func (s Session) VaultRemaining(ttl time.Duration, now time.Time) time.Duration {
	if s.VaultGrantedAt == nil {
		return 0
	}
	left := ttl - now.Sub(*s.VaultGrantedAt)
	if left < 0 {
		return 0
	}
	return left
}
