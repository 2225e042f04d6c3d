package token

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzaikin/dbportal/internal/model"
)

func TestJWT_GenerateAndParse(t *testing.T) {
	tm := NewJWT("secret", time.Hour)
	userID := uuid.New()

	tok, err := tm.Generate(userID)
	require.NoError(t, err)
	require.NotEmpty(t, tok)

	parsed, err := tm.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestJWT_Parse_WrongSecret(t *testing.T) {
	tok, err := NewJWT("secret", time.Hour).Generate(uuid.New())
	require.NoError(t, err)

	_, err = NewJWT("other", time.Hour).Parse(tok)
	require.Error(t, err)
	assert.False(t, errors.Is(err, model.ErrSessionExpired))
}

func TestJWT_Parse_Expired(t *testing.T) {
	tok, err := NewJWT("secret", -time.Minute).Generate(uuid.New())
	require.NoError(t, err)

	_, err = NewJWT("secret", -time.Minute).Parse(tok)
	require.ErrorIs(t, err, model.ErrSessionExpired)
}

func TestJWT_Parse_Garbage(t *testing.T) {
	_, err := NewJWT("secret", time.Hour).Parse("not-a-token")
	require.Error(t, err)
}
