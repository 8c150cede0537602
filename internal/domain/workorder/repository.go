package workorder

import (
	"context"

	"stokado/internal/core/id"
)

// Repository defines persistence for work orders and their lines.
// Implementations load orders with lines attached.
type Repository interface {
	Create(ctx context.Context, order *WorkOrder) error
	GetByID(ctx context.Context, orderID id.ID) (*WorkOrder, error)

	// ListOpenByItemAndLocation returns open orders at the location that have
	// at least one line for the item.
	ListOpenByItemAndLocation(ctx context.Context, itemID, locationID id.ID) ([]*WorkOrder, error)

	// ListOpen pages open orders for the consistency sweep.
	ListOpen(ctx context.Context, needsFixOnly bool, limit int) ([]*WorkOrder, error)

	// UpdateLocation re-points the whole order and clears the needs-fix flag.
	UpdateLocation(ctx context.Context, orderID, locationID id.ID) error

	// SetNeedsFix persists the location-consistency flag.
	SetNeedsFix(ctx context.Context, orderID id.ID, needsFix bool) error

	// DeleteLines removes the given lines from an order.
	DeleteLines(ctx context.Context, orderID id.ID, lineIDs []id.ID) error

	// Delete removes an order left with zero lines after a split.
	Delete(ctx context.Context, orderID id.ID) error
}
