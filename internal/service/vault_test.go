package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mzaikin/dbportal/internal/logger"
	"github.com/mzaikin/dbportal/internal/mocks"
	"github.com/mzaikin/dbportal/internal/model"
)

type vaultFixture struct {
	users      *mocks.UserStore
	sessions   *mocks.SessionStore
	limitStore *mocks.RateLimitStore
	auditStore *mocks.AuditStore
	vault      *Vault
}

func newVaultFixture(t *testing.T) *vaultFixture {
	t.Helper()

	f := &vaultFixture{
		users:      &mocks.UserStore{},
		sessions:   &mocks.SessionStore{},
		limitStore: &mocks.RateLimitStore{},
		auditStore: &mocks.AuditStore{},
	}
	f.auditStore.On("Create", mock.Anything, mock.Anything).Return(nil).Maybe()

	log := logger.New(0)
	limiter := NewLimiter(f.limitStore, model.RateLimitPolicy{
		Purpose:     model.RateLimitUnlock,
		MaxAttempts: 5,
		Window:      5 * time.Minute,
	})
	f.vault = NewVault(f.users, f.sessions, limiter, NewRecorder(f.auditStore, log), 60*time.Second, log)

	return f
}

func authedSession(userID uuid.UUID) model.Session {
	return model.Session{
		ID:             "sid",
		UserID:         &userID,
		CSRFToken:      "csrf",
		LastActivityAt: time.Now(),
	}
}

func TestVault_Check_Locked(t *testing.T) {
	f := newVaultFixture(t)
	session := authedSession(uuid.New())

	f.sessions.On("ExpireVault", mock.Anything, "sid", 60*time.Second, mock.Anything).Return(false, nil)

	status, err := f.vault.Check(context.Background(), session, testClient())
	require.NoError(t, err)
	assert.False(t, status.Unlocked)
}

func TestVault_Check_Unlocked(t *testing.T) {
	f := newVaultFixture(t)
	granted := time.Now().Add(-10 * time.Second)
	session := authedSession(uuid.New())
	session.VaultGrantedAt = &granted

	f.sessions.On("ExpireVault", mock.Anything, "sid", 60*time.Second, mock.Anything).Return(false, nil)

	status, err := f.vault.Check(context.Background(), session, testClient())
	require.NoError(t, err)
	assert.True(t, status.Unlocked)
	assert.Greater(t, status.ExpiresIn, 40*time.Second)
	assert.LessOrEqual(t, status.ExpiresIn, 60*time.Second)
}

func TestVault_Check_ClearsStaleGrant(t *testing.T) {
	f := newVaultFixture(t)
	granted := time.Now().Add(-2 * time.Minute)
	session := authedSession(uuid.New())
	session.VaultGrantedAt = &granted

	f.sessions.On("ExpireVault", mock.Anything, "sid", 60*time.Second, mock.Anything).Return(true, nil)

	status, err := f.vault.Check(context.Background(), session, testClient())
	require.NoError(t, err)
	assert.False(t, status.Unlocked)
	// An expiry clears only the grant; the session row itself survives.
	f.sessions.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestVault_Unlock_Success(t *testing.T) {
	f := newVaultFixture(t)
	userID := uuid.New()
	user := model.User{ID: userID, PasswordHash: mustHash(t, "Sup3rSecret")}

	f.limitStore.On("Record", mock.Anything, userID.String(), model.RateLimitUnlock, mock.Anything, mock.Anything).Return(model.RateLimit{Attempts: 1, WindowStart: time.Now()}, nil)
	f.users.On("GetByID", mock.Anything, userID).Return(user, nil)
	f.sessions.On("GrantVault", mock.Anything, "sid", mock.Anything).Return(nil)
	f.limitStore.On("Reset", mock.Anything, userID.String(), model.RateLimitUnlock).Return(nil)

	status, err := f.vault.Unlock(context.Background(), authedSession(userID), "Sup3rSecret", testClient())
	require.NoError(t, err)
	assert.True(t, status.Unlocked)
	assert.Equal(t, 60*time.Second, status.ExpiresIn)
}

func TestVault_Unlock_WrongPasswordSurfacesAttempts(t *testing.T) {
	f := newVaultFixture(t)
	userID := uuid.New()
	user := model.User{ID: userID, PasswordHash: mustHash(t, "Sup3rSecret")}

	f.limitStore.On("Record", mock.Anything, userID.String(), model.RateLimitUnlock, mock.Anything, mock.Anything).Return(model.RateLimit{Attempts: 3, WindowStart: time.Now()}, nil)
	f.users.On("GetByID", mock.Anything, userID).Return(user, nil)

	_, err := f.vault.Unlock(context.Background(), authedSession(userID), "WrongPass1", testClient())

	var denied *model.VaultDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, 3, denied.Attempts)
	assert.Equal(t, 2, denied.Remaining)
	f.sessions.AssertNotCalled(t, "GrantVault", mock.Anything, mock.Anything, mock.Anything)
}

func TestVault_Unlock_Blocked(t *testing.T) {
	f := newVaultFixture(t)
	userID := uuid.New()

	f.limitStore.On("Record", mock.Anything, userID.String(), model.RateLimitUnlock, mock.Anything, mock.Anything).Return(model.RateLimit{
		Attempts:    6,
		WindowStart: time.Now(),
	}, nil)

	_, err := f.vault.Unlock(context.Background(), authedSession(userID), "Sup3rSecret", testClient())

	var limited *model.RateLimitedError
	require.ErrorAs(t, err, &limited)
	f.users.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestVault_Unlock_CredentialLoadFailureAudited(t *testing.T) {
	f := newVaultFixture(t)
	userID := uuid.New()

	f.limitStore.On("Record", mock.Anything, userID.String(), model.RateLimitUnlock, mock.Anything, mock.Anything).Return(model.RateLimit{Attempts: 1, WindowStart: time.Now()}, nil)
	f.users.On("GetByID", mock.Anything, userID).Return(model.User{}, model.ErrStoreUnavailable)

	_, err := f.vault.Unlock(context.Background(), authedSession(userID), "Sup3rSecret", testClient())
	require.Error(t, err)

	f.auditStore.AssertCalled(t, "Create", mock.Anything, mock.MatchedBy(func(e model.AuditEntry) bool {
		return e.Action == model.AuditPortalAccessError && e.ActorID != nil && *e.ActorID == userID
	}))
	f.sessions.AssertNotCalled(t, "GrantVault", mock.Anything, mock.Anything, mock.Anything)
}

func TestVault_Unlock_AnonymousSession(t *testing.T) {
	f := newVaultFixture(t)

	_, err := f.vault.Unlock(context.Background(), model.Session{ID: "sid"}, "whatever", testClient())
	require.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestVault_LoginLimiterUnaffectedByUnlockFailures(t *testing.T) {
	f := newVaultFixture(t)
	userID := uuid.New()
	user := model.User{ID: userID, PasswordHash: mustHash(t, "Sup3rSecret")}

	f.limitStore.On("Record", mock.Anything, userID.String(), model.RateLimitUnlock, mock.Anything, mock.Anything).Return(model.RateLimit{Attempts: 1, WindowStart: time.Now()}, nil)
	f.users.On("GetByID", mock.Anything, userID).Return(user, nil)

	_, err := f.vault.Unlock(context.Background(), authedSession(userID), "WrongPass1", testClient())
	require.Error(t, err)

	// Counters are keyed by purpose; nothing ever records under "login"
	// from the unlock path.
	f.limitStore.AssertNotCalled(t, "Record", mock.Anything, mock.Anything, model.RateLimitLogin, mock.Anything, mock.Anything)
}
