// Package location provides the storage Location catalog.
// Locations are warehouses or storage areas whose per-item balances the
// ledger tracks.
package location

import (
	"context"

	"stokado/internal/core/entity"
)

// Location represents a storage/warehouse identified by a unique code.
type Location struct {
	entity.Catalog

	// Active indicates if the location is operational. Inactive locations
	// keep their ledger history but are excluded from best-location searches
	// and from total balance.
	Active bool `db:"active" json:"active"`

	// Address is the physical address
	Address *string `db:"address" json:"address,omitempty"`
}

// NewLocation creates a new active Location.
func NewLocation(code, name string) *Location {
	return &Location{
		Catalog: entity.NewCatalog(code, name),
		Active:  true,
	}
}

// Validate implements entity.Validatable.
func (l *Location) Validate(ctx context.Context) error {
	return l.Catalog.Validate(ctx)
}

// CanAcceptStock returns true if the location may receive inbound movements.
func (l *Location) CanAcceptStock() bool {
	return l.Active && !l.DeletionMark
}
