package model

import (
	"context"

	"github.com/google/uuid"
)

// TenantProvisioner manages per-user isolated databases. Create is atomic at
// the store level: two concurrent calls for the same user never race into a
// partially created or duplicated schema. Destroy exists for compensating
// rollback only and is never reachable from the HTTP surface.
type TenantProvisioner interface {
	Exists(ctx context.Context, userID uuid.UUID) (bool, error)
	Create(ctx context.Context, userID uuid.UUID) error
	Destroy(ctx context.Context, userID uuid.UUID) error
}
