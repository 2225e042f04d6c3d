package context

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzaikin/dbportal/internal/model"
)

func TestManager_SetAndGetSession(t *testing.T) {
	m := NewManager()
	userID := uuid.New()
	session := model.Session{ID: "sid", UserID: &userID, CSRFToken: "csrf"}

	ctx := m.SetSessionToContext(context.Background(), session)

	got, ok := m.GetSessionFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, session, got)
}

func TestManager_GetSession_Empty(t *testing.T) {
	m := NewManager()

	_, ok := m.GetSessionFromContext(context.Background())
	assert.False(t, ok)
}
