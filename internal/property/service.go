package property

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the property directory operations.
type Service interface {
	CreateProperty(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*Property, error)
	GetProperty(ctx context.Context, id uuid.UUID) (*Property, error)
	ListProperties(ctx context.Context, f Filter) ([]*Property, int, error)
	ListOwnerProperties(ctx context.Context, ownerID uuid.UUID) ([]*Property, error)
	UpdateProperty(ctx context.Context, actorID, id uuid.UUID, in UpdateInput) (*Property, error)
	DeactivateProperty(ctx context.Context, actorID, id uuid.UUID) error
	ListAllProperties(ctx context.Context, f AdminFilter) ([]*Property, int, error)
	SetVerified(ctx context.Context, id uuid.UUID, verified bool) (*Property, error)
	ToggleFavorite(ctx context.Context, userID, id uuid.UUID) (*Property, bool, error)
	ListFavorites(ctx context.Context, userID uuid.UUID) ([]*Property, error)
}
