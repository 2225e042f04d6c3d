package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mzaikin/dbportal/internal/logger"
	"github.com/mzaikin/dbportal/internal/model"
)

var _ model.TenantProvisioner = (*Provisioner)(nil)

// Connector opens database handles for the provisioner. Admin must connect
// without a fixed application database; Tenant connects to the named tenant
// database.
type Connector interface {
	Admin() (*sql.DB, error)
	Tenant(dbName string) (*sql.DB, error)
}

// Provisioner creates, checks and (for rollback only) destroys per-user
// tenant databases. Creation is serialized per tenant name with a session
// advisory lock so two concurrent calls for the same user can never race
// into a partially created or duplicated schema.
type Provisioner struct {
	connector    Connector
	queryTimeout time.Duration
	logger       *logger.Logger
}

func NewProvisioner(connector Connector, queryTimeout time.Duration, logger *logger.Logger) *Provisioner {
	return &Provisioner{
		connector:    connector,
		queryTimeout: queryTimeout,
		logger:       logger,
	}
}

// duplicateDatabase is the SQLSTATE raised when CREATE DATABASE loses a
// race that the advisory lock did not cover (e.g. an out-of-band creation).
// It is treated as idempotent success.
const duplicateDatabase = "42P04"

var tenantNamePattern = regexp.MustCompile(`^tenant_[0-9a-f]{32}$`)

// schemaStatements is the fixed, versionless tenant table set, applied in
// one transaction at creation.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS employees (
		id BIGSERIAL PRIMARY KEY,
		fullname TEXT NOT NULL,
		position TEXT NOT NULL,
		brand TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Active',
		shift TEXT NOT NULL,
		violation TEXT,
		image TEXT,
		qr_code TEXT UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS violations (
		id BIGSERIAL PRIMARY KEY,
		employee_id BIGINT NOT NULL REFERENCES employees (id) ON DELETE CASCADE,
		violation_type TEXT,
		violation_description TEXT,
		violation_date DATE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS status_history (
		id BIGSERIAL PRIMARY KEY,
		employee_id BIGINT NOT NULL REFERENCES employees (id) ON DELETE CASCADE,
		old_status TEXT,
		new_status TEXT,
		changed_by TEXT,
		change_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS access_log (
		id BIGSERIAL PRIMARY KEY,
		employee_id BIGINT,
		qr_code TEXT,
		access_type TEXT,
		check_status TEXT,
		ip_address TEXT,
		user_agent TEXT,
		access_timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id BIGSERIAL PRIMARY KEY,
		setting_key TEXT NOT NULL UNIQUE,
		setting_value TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// Exists reports whether the tenant database for the user is present.
func (p *Provisioner) Exists(ctx context.Context, userID uuid.UUID) (bool, error) {
	name := model.TenantDBName(userID)

	admin, err := p.connector.Admin()
	if err != nil {
		return false, &model.ProvisioningError{TenantDB: name, Err: err}
	}

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	var exists bool
	err = admin.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, &model.ProvisioningError{TenantDB: name, Err: mapTimeout(err)}
	}
	return exists, nil
}

// mapTimeout surfaces context deadline expiry as the retryable store error.
func mapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	return err
}

// Create provisions the tenant database and its fixed schema. The outcome
// is all-or-nothing: a schema failure on a database this call created drops
// the database again. Calling Create for an already provisioned tenant is a
// no-op beyond re-asserting the schema.
func (p *Provisioner) Create(ctx context.Context, userID uuid.UUID) error {
	name := model.TenantDBName(userID)
	if !tenantNamePattern.MatchString(name) {
		return &model.ProvisioningError{TenantDB: name, Err: fmt.Errorf("derived name is malformed")}
	}

	admin, err := p.connector.Admin()
	if err != nil {
		return &model.ProvisioningError{TenantDB: name, Err: err}
	}

	// CREATE DATABASE cannot run inside a transaction, so atomicity comes
	// from a session advisory lock held on a pinned connection for the
	// whole check-create sequence.
	conn, err := admin.Conn(ctx)
	if err != nil {
		return &model.ProvisioningError{TenantDB: name, Err: err}
	}
	defer conn.Close()

	lockCtx, cancelLock := p.withTimeout(ctx)
	defer cancelLock()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock(hashtext($1))`, name); err != nil {
		return &model.ProvisioningError{TenantDB: name, Err: fmt.Errorf("failed to acquire lock: %w", mapTimeout(err))}
	}
	defer func() {
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock(hashtext($1))`, name); err != nil {
			p.logger.Error("failed to release provisioning lock", "tenant_db", name, "error", err)
		}
	}()

	checkCtx, cancelCheck := p.withTimeout(ctx)
	defer cancelCheck()

	var exists bool
	if err := conn.QueryRowContext(checkCtx,
		`SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)`, name,
	).Scan(&exists); err != nil {
		return &model.ProvisioningError{TenantDB: name, Err: mapTimeout(err)}
	}

	created := false
	if !exists {
		createCtx, cancelCreate := p.withTimeout(ctx)
		defer cancelCreate()
		if _, err := conn.ExecContext(createCtx, fmt.Sprintf(`CREATE DATABASE %q`, name)); err != nil {
			var pgErr *pgconn.PgError
			if !errors.As(err, &pgErr) || pgErr.Code != duplicateDatabase {
				return &model.ProvisioningError{TenantDB: name, Err: fmt.Errorf("failed to create database: %w", err)}
			}
		} else {
			created = true
		}
	}

	if err := p.applySchema(ctx, name); err != nil {
		if created {
			if dropErr := p.drop(ctx, conn, name); dropErr != nil {
				p.logger.Error("failed to drop tenant database after schema failure",
					"tenant_db", name, "error", dropErr)
			}
		}
		return &model.ProvisioningError{TenantDB: name, Err: fmt.Errorf("failed to apply schema: %w", err)}
	}

	p.logger.Info("tenant database ready", "tenant_db", name, "created", created)
	return nil
}

// Destroy drops the tenant database. Rollback and cleanup only.
func (p *Provisioner) Destroy(ctx context.Context, userID uuid.UUID) error {
	name := model.TenantDBName(userID)

	admin, err := p.connector.Admin()
	if err != nil {
		return &model.ProvisioningError{TenantDB: name, Err: err}
	}

	conn, err := admin.Conn(ctx)
	if err != nil {
		return &model.ProvisioningError{TenantDB: name, Err: err}
	}
	defer conn.Close()

	if err := p.drop(ctx, conn, name); err != nil {
		return &model.ProvisioningError{TenantDB: name, Err: err}
	}
	return nil
}

func (p *Provisioner) drop(ctx context.Context, conn *sql.Conn, name string) error {
	ctx, cancel := p.withTimeout(context.WithoutCancel(ctx))
	defer cancel()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf(`DROP DATABASE IF EXISTS %q`, name)); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}
	return nil
}

// applySchema creates the fixed table set on the tenant database inside a
// single transaction.
func (p *Provisioner) applySchema(ctx context.Context, name string) error {
	db, err := p.connector.Tenant(name)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tenant table: %w", err)
		}
	}

	return tx.Commit()
}

func (p *Provisioner) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.queryTimeout)
}
