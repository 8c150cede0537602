package item

import (
	"context"

	"stokado/internal/core/id"
)

// Repository defines the interface for Item persistence.
type Repository interface {
	Create(ctx context.Context, it *Item) error
	Update(ctx context.Context, it *Item) error
	GetByID(ctx context.Context, itemID id.ID) (*Item, error)
	GetByCode(ctx context.Context, code string) (*Item, error)
	List(ctx context.Context, includeDeleted bool) ([]*Item, error)
}
