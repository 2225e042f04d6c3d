package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mzaikin/dbportal/internal/logger"
	"github.com/mzaikin/dbportal/internal/model"
)

// Vault is the stage-two access gate. A session starts Locked, becomes
// Unlocked through re-authentication with the account's own password, and
// reverts to Locked once the grant outlives its TTL. Reversion is evaluated
// lazily on the next check; there is no background timer, and the latency
// of revocation that follows from that is accepted.
type Vault struct {
	users    model.UserStore
	sessions model.SessionStore
	limiter  *Limiter
	audit    *Recorder
	grantTTL time.Duration
	logger   *logger.Logger
}

func NewVault(
	users model.UserStore,
	sessions model.SessionStore,
	limiter *Limiter,
	audit *Recorder,
	grantTTL time.Duration,
	logger *logger.Logger,
) *Vault {
	return &Vault{
		users:    users,
		sessions: sessions,
		limiter:  limiter,
		audit:    audit,
		grantTTL: grantTTL,
		logger:   logger,
	}
}

// Status describes the gate as seen by one session.
type Status struct {
	Unlocked  bool
	ExpiresIn time.Duration
}

// Check evaluates the gate for a session, clearing a stale grant as a side
// effect. Expiry is audited exactly once, by whichever check cleared the
// grant, and never touches the primary session.
func (v *Vault) Check(ctx context.Context, session model.Session, client Client) (Status, error) {
	now := time.Now()

	expired, err := v.sessions.ExpireVault(ctx, session.ID, v.grantTTL, now)
	if err != nil {
		return Status{}, fmt.Errorf("failed to evaluate vault grant: %w", err)
	}
	if expired {
		v.audit.Record(ctx, session.UserID, model.AuditPortalAccessExpired, "portal access expired", client)
		return Status{}, nil
	}

	if !session.VaultUnlocked(v.grantTTL, now) {
		return Status{}, nil
	}
	return Status{Unlocked: true, ExpiresIn: session.VaultRemaining(v.grantTTL, now)}, nil
}

// Unlock re-authenticates the session's user with their current account
// password and grants time-boxed access. The attempt is reserved against
// the limiter atomically before the password is evaluated, so concurrent
// attempts at the limit boundary admit exactly one. Failed attempts
// surface the count used and remaining; the limiter for this purpose is
// independent of the login limiter.
func (v *Vault) Unlock(ctx context.Context, session model.Session, password string, client Client) (Status, error) {
	if session.UserID == nil {
		return Status{}, model.ErrInvalidCredentials
	}
	subject := session.UserID.String()

	rl, err := v.limiter.Reserve(ctx, subject)
	if err != nil {
		var limited *model.RateLimitedError
		if errors.As(err, &limited) {
			v.audit.Record(ctx, session.UserID, model.AuditPortalAccessBlocked,
				"too many failed unlock attempts", client)
		}
		return Status{}, err
	}

	user, err := v.users.GetByID(ctx, *session.UserID)
	if err != nil {
		v.audit.Record(ctx, session.UserID, model.AuditPortalAccessError,
			"failed to load stored credentials for unlock", client)
		return Status{}, fmt.Errorf("failed to load user for unlock: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		v.audit.Record(ctx, session.UserID, model.AuditPortalAccessDenied,
			"invalid password on unlock attempt", client)

		remaining := v.limiter.Policy().MaxAttempts - rl.Attempts
		if remaining < 0 {
			remaining = 0
		}
		return Status{}, &model.VaultDeniedError{Attempts: rl.Attempts, Remaining: remaining}
	}

	now := time.Now()
	if err := v.sessions.GrantVault(ctx, session.ID, now); err != nil {
		return Status{}, fmt.Errorf("failed to store vault grant: %w", err)
	}
	if err := v.limiter.Reset(ctx, subject); err != nil {
		v.logger.Error("failed to reset unlock limiter", "error", err.Error())
	}

	v.audit.Record(ctx, session.UserID, model.AuditPortalAccessGranted,
		"portal access granted using account password", client)

	return Status{Unlocked: true, ExpiresIn: v.grantTTL}, nil
}

// TTL returns the configured grant duration.
func (v *Vault) TTL() time.Duration {
	return v.grantTTL
}
