package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mzaikin/dbportal/internal/logger"
	"github.com/mzaikin/dbportal/internal/model"
)

// Recorder appends audit entries. A failed write is logged locally and
// swallowed: auditing must never abort or roll back the operation being
// audited.
type Recorder struct {
	store  model.AuditStore
	logger *logger.Logger
}

func NewRecorder(store model.AuditStore, logger *logger.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record appends one security event. actor is nil for anonymous events.
func (r *Recorder) Record(ctx context.Context, actor *uuid.UUID, action model.AuditAction, detail string, client Client) {
	entry := model.AuditEntry{
		ID:        uuid.New(),
		ActorID:   actor,
		Action:    action,
		Detail:    detail,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		CreatedAt: time.Now(),
	}

	if err := r.store.Create(ctx, entry); err != nil {
		r.logger.Error("failed to append audit entry",
			"action", action,
			"error", err.Error())
	}
}

// Client carries the request's remote address and user agent for auditing.
type Client struct {
	IP        string
	UserAgent string
}
