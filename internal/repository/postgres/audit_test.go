package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAuditRepository(t *testing.T) {
	db := &Connection{}
	repo := NewAuditRepository(db)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
}
