//go:build integration

package tenant_test

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
	"github.com/mzaikin/dbportal/internal/tenant"
	"github.com/mzaikin/dbportal/internal/testutil"
)

var adminDSN string

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "postgres",
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
	adminDSN = fmt.Sprintf("postgres://postgres:password@%s:%s/postgres?sslmode=disable", host, port.Port())

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func newTestProvisioner(t *testing.T) *tenant.Provisioner {
	t.Helper()
	connector := tenant.NewDSNConnector(adminDSN)
	t.Cleanup(func() { _ = connector.Close() })
	return tenant.NewProvisioner(connector, 30*time.Second, testutil.MakeNoopLogger())
}

func TestProvisioner_Lifecycle(t *testing.T) {
	ctx := context.Background()
	p := newTestProvisioner(t)
	userID := uuid.New()

	exists, err := p.Exists(ctx, userID)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, p.Create(ctx, userID))

	exists, err = p.Exists(ctx, userID)
	require.NoError(t, err)
	require.True(t, exists)

	// Creating again is idempotent.
	require.NoError(t, p.Create(ctx, userID))

	// The fixed tenant schema is in place.
	connector := tenant.NewDSNConnector(adminDSN)
	t.Cleanup(func() { _ = connector.Close() })
	db, err := connector.Tenant(model.TenantDBName(userID))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for _, table := range []string{"employees", "violations", "status_history", "access_log", "settings"} {
		var present bool
		err := db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table,
		).Scan(&present)
		require.NoError(t, err)
		require.True(t, present, "table %s missing", table)
	}

	require.NoError(t, p.Destroy(ctx, userID))
	exists, err = p.Exists(ctx, userID)
	require.NoError(t, err)
	require.False(t, exists)
}

// Concurrent creations for the same user must all succeed and leave exactly
// one usable tenant database.
func TestProvisioner_ConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	p := newTestProvisioner(t)
	userID := uuid.New()
	t.Cleanup(func() { _ = p.Destroy(context.Background(), userID) })

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = p.Create(ctx, userID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}

	exists, err := p.Exists(ctx, userID)
	require.NoError(t, err)
	require.True(t, exists)
}
