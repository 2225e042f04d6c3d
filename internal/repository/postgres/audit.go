package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mzaikin/dbportal/internal/model"
)

var _ model.AuditStore = (*AuditRepository)(nil)

type AuditRepository struct {
	db *Connection
}

func NewAuditRepository(db *Connection) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends one audit entry. The table has no update or delete path.
func (r *AuditRepository) Create(ctx context.Context, entry model.AuditEntry) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	const query = `
        INSERT INTO audit_log (id, actor_id, action, detail, ip, user_agent, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.ActorID, entry.Action, entry.Detail,
		entry.IP, entry.UserAgent, entry.CreatedAt,
	)
	if err != nil {
		return mapError(fmt.Errorf("failed to append audit entry: %w", err))
	}
	return nil
}
