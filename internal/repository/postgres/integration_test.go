//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mzaikin/dbportal/internal/model"
	repo "github.com/mzaikin/dbportal/internal/repository/postgres"
)

var dsn string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "dbportal_test",
			},
			WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	if err != nil {
		panic(err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		panic(err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		panic(err)
	}
	dsn = fmt.Sprintf("postgres://postgres:password@%s:%s/dbportal_test?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newUser(username string) model.User {
	id := uuid.New()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return model.User{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$10$hashhashhashhashhashhash",
		FirstName:    "John",
		LastName:     "Doe",
		TenantDB:     model.TenantDBName(id),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestRepositories_CRUD(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConnection(ctx, dsn, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	t.Run("user_repository", func(t *testing.T) {
		ur := repo.NewUserRepository(conn)
		u := newUser("crud_user")

		saved, err := ur.Create(ctx, u)
		require.NoError(t, err)
		require.Equal(t, u.ID, saved.ID)

		_, err = ur.Create(ctx, newUserWithSameUsername(u))
		require.ErrorIs(t, err, model.ErrConflict)

		byUsername, err := ur.GetByIdentifier(ctx, u.Username)
		require.NoError(t, err)
		require.Equal(t, u.ID, byUsername.ID)

		byEmail, err := ur.GetByIdentifier(ctx, u.Email)
		require.NoError(t, err)
		require.Equal(t, u.ID, byEmail.ID)

		_, err = ur.GetByIdentifier(ctx, "missing")
		require.ErrorIs(t, err, model.ErrNotFound)

		at := time.Now().UTC().Truncate(time.Microsecond)
		require.NoError(t, ur.UpdateLastLogin(ctx, u.ID, at))
		got, err := ur.GetByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLoginAt)
		require.WithinDuration(t, at, *got.LastLoginAt, time.Millisecond)

		require.NoError(t, ur.Delete(ctx, u.ID))
		_, err = ur.GetByID(ctx, u.ID)
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("session_repository", func(t *testing.T) {
		ur := repo.NewUserRepository(conn)
		sr := repo.NewSessionRepository(conn)

		owner, err := ur.Create(ctx, newUser("session_user"))
		require.NoError(t, err)

		now := time.Now().UTC().Truncate(time.Microsecond)
		anon := model.Session{
			ID:             "anon-session",
			CSRFToken:      "anon-csrf",
			IP:             "10.0.0.1",
			UserAgent:      "integration-test",
			CreatedAt:      now,
			LastActivityAt: now,
		}
		require.NoError(t, sr.Create(ctx, anon))

		loaded, err := sr.GetByID(ctx, anon.ID)
		require.NoError(t, err)
		require.Nil(t, loaded.UserID)
		require.Equal(t, "anon-csrf", loaded.CSRFToken)

		rotated := model.Session{
			ID:             "authed-session",
			UserID:         &owner.ID,
			CSRFToken:      "rotated-csrf",
			AuthToken:      "signed-token",
			IP:             "10.0.0.1",
			UserAgent:      "integration-test",
			CreatedAt:      now,
			LastActivityAt: now,
		}
		require.NoError(t, sr.Rotate(ctx, anon.ID, rotated))

		_, err = sr.GetByID(ctx, anon.ID)
		require.ErrorIs(t, err, model.ErrNotFound)

		loaded, err = sr.GetByID(ctx, rotated.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded.UserID)
		require.Equal(t, owner.ID, *loaded.UserID)

		granted := time.Now().UTC().Truncate(time.Microsecond).Add(-2 * time.Minute)
		require.NoError(t, sr.GrantVault(ctx, rotated.ID, granted))

		// The stale grant is cleared exactly once.
		cleared, err := sr.ExpireVault(ctx, rotated.ID, time.Minute, time.Now().UTC())
		require.NoError(t, err)
		require.True(t, cleared)
		cleared, err = sr.ExpireVault(ctx, rotated.ID, time.Minute, time.Now().UTC())
		require.NoError(t, err)
		require.False(t, cleared)

		// A live grant is never cleared.
		require.NoError(t, sr.GrantVault(ctx, rotated.ID, time.Now().UTC()))
		cleared, err = sr.ExpireVault(ctx, rotated.ID, time.Minute, time.Now().UTC())
		require.NoError(t, err)
		require.False(t, cleared)

		require.NoError(t, sr.Delete(ctx, rotated.ID))
		_, err = sr.GetByID(ctx, rotated.ID)
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("rate_limit_repository", func(t *testing.T) {
		rr := repo.NewRateLimitRepository(conn)
		window := 15 * time.Minute

		_, err := rr.Get(ctx, "198.51.100.1", model.RateLimitLogin)
		require.ErrorIs(t, err, model.ErrNotFound)

		rl, err := rr.Record(ctx, "198.51.100.1", model.RateLimitLogin, window, time.Now().UTC())
		require.NoError(t, err)
		require.Equal(t, 1, rl.Attempts)

		rl, err = rr.Record(ctx, "198.51.100.1", model.RateLimitLogin, window, time.Now().UTC())
		require.NoError(t, err)
		require.Equal(t, 2, rl.Attempts)

		// Same subject under another purpose counts independently.
		rl, err = rr.Record(ctx, "198.51.100.1", model.RateLimitUnlock, window, time.Now().UTC())
		require.NoError(t, err)
		require.Equal(t, 1, rl.Attempts)

		// A recording after the window restarts the count at one.
		rl, err = rr.Record(ctx, "198.51.100.1", model.RateLimitLogin, window, time.Now().UTC().Add(window+time.Minute))
		require.NoError(t, err)
		require.Equal(t, 1, rl.Attempts)

		require.NoError(t, rr.Reset(ctx, "198.51.100.1", model.RateLimitLogin))
		_, err = rr.Get(ctx, "198.51.100.1", model.RateLimitLogin)
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("audit_repository", func(t *testing.T) {
		ar := repo.NewAuditRepository(conn)

		entry := model.AuditEntry{
			ID:        uuid.New(),
			Action:    model.AuditLoginFailed,
			Detail:    "failed login attempt",
			IP:        "10.0.0.1",
			UserAgent: "integration-test",
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, ar.Create(ctx, entry))

		var count int
		err := conn.QueryRow(ctx, `SELECT count(*) FROM audit_log WHERE id = $1`, entry.ID).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count)
	})
}

// Concurrent recordings on one key must not lose increments.
func TestRateLimitRepository_ConcurrentRecord(t *testing.T) {
	ctx := context.Background()
	conn, err := repo.NewConnection(ctx, dsn, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	rr := repo.NewRateLimitRepository(conn)
	window := 15 * time.Minute

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := rr.Record(ctx, "concurrent-subject", model.RateLimitLogin, window, time.Now().UTC())
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	rl, err := rr.Get(ctx, "concurrent-subject", model.RateLimitLogin)
	require.NoError(t, err)
	require.Equal(t, workers, rl.Attempts)
}

func newUserWithSameUsername(u model.User) model.User {
	dup := newUser(u.Username)
	dup.Email = "other-" + u.Email
	return dup
}
