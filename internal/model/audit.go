package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditStore appends security events. Entries are never updated or deleted.
type AuditStore interface {
	Create(ctx context.Context, entry AuditEntry) error
}

// AuditAction enumerates security-relevant transitions.
type AuditAction string

const (
	AuditUserRegistered      AuditAction = "USER_REGISTERED"
	AuditUserLogin           AuditAction = "USER_LOGIN"
	AuditUserLogout          AuditAction = "USER_LOGOUT"
	AuditLoginFailed         AuditAction = "LOGIN_FAILED"
	AuditSessionExpired      AuditAction = "SESSION_EXPIRED"
	AuditPortalAccessGranted AuditAction = "PORTAL_ACCESS_GRANTED"
	AuditPortalAccessDenied  AuditAction = "PORTAL_ACCESS_DENIED"
	AuditPortalAccessBlocked AuditAction = "PORTAL_ACCESS_BLOCKED"
	AuditPortalAccessExpired AuditAction = "PORTAL_ACCESS_EXPIRED"
	AuditPortalAccessError   AuditAction = "PORTAL_ACCESS_ERROR"
)

// AuditEntry is one appended security event. ActorID is nil for anonymous
// events such as failed logins.
type AuditEntry struct {
	ID        uuid.UUID
	ActorID   *uuid.UUID
	Action    AuditAction
	Detail    string
	IP        string
	UserAgent string
	CreatedAt time.Time
}
