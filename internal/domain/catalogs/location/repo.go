package location

import (
	"context"

	"stokado/internal/core/id"
)

// Repository defines the interface for Location persistence.
type Repository interface {
	Create(ctx context.Context, loc *Location) error
	Update(ctx context.Context, loc *Location) error
	GetByID(ctx context.Context, locationID id.ID) (*Location, error)
	GetByCode(ctx context.Context, code string) (*Location, error)
	List(ctx context.Context, activeOnly bool) ([]*Location, error)

	// GetMany resolves a batch of ids in one query. The consolidation engine
	// uses it to sort sources by location code before taking locks.
	GetMany(ctx context.Context, ids []id.ID) (map[id.ID]*Location, error)
}
