package tenant

import (
	"database/sql"
	"fmt"
	"net/url"
	"sync"
)

// DSNConnector opens admin and tenant handles from a single admin DSN. The
// tenant DSN is the admin DSN with the path swapped for the tenant database
// name. The admin handle is opened once and shared; tenant handles are
// short-lived and owned by the caller.
type DSNConnector struct {
	adminDSN string

	mu    sync.Mutex
	admin *sql.DB
}

func NewDSNConnector(adminDSN string) *DSNConnector {
	return &DSNConnector{adminDSN: adminDSN}
}

func (c *DSNConnector) Admin() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.admin != nil {
		return c.admin, nil
	}

	db, err := sql.Open("pgx", c.adminDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open admin connection: %w", err)
	}
	c.admin = db
	return db, nil
}

func (c *DSNConnector) Tenant(dbName string) (*sql.DB, error) {
	u, err := url.Parse(c.adminDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse admin dsn: %w", err)
	}
	u.Path = "/" + dbName

	db, err := sql.Open("pgx", u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant connection: %w", err)
	}
	return db, nil
}

// Close releases the shared admin handle.
func (c *DSNConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.admin == nil {
		return nil
	}
	err := c.admin.Close()
	c.admin = nil
	return err
}
