package context

import (
	"context"

	"github.com/mzaikin/dbportal/internal/model"
)

type ctxKey int

const sessionKey ctxKey = iota

// Manager moves the resolved session in and out of request contexts.
type Manager struct{}

// NewManager creates a new context manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// SetSessionToContext returns a context carrying the session.
func (m *Manager) SetSessionToContext(ctx context.Context, session model.Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// GetSessionFromContext retrieves the session placed by the middleware.
func (m *Manager) GetSessionFromContext(ctx context.Context) (model.Session, bool) {
	session, ok := ctx.Value(sessionKey).(model.Session)
	return session, ok
}
