// Package item provides the Item catalog: sellable/storable catalog entries
// tracked by the stock ledger.
package item

import (
	"context"

	"stokado/internal/core/apperror"
	"stokado/internal/core/entity"
	"stokado/internal/core/types"
)

// StockStatus classifies an item's total balance against its minimum threshold.
// The threshold is advisory only; the ledger never enforces it.
type StockStatus string

const (
	StatusOK           StockStatus = "ok"
	StatusBelowMinimum StockStatus = "below_minimum"
	StatusOutOfStock   StockStatus = "out_of_stock"
)

// Item represents a catalog entry identified by a unique code.
type Item struct {
	entity.Catalog

	// Unit is the unit of measure label ("pcs", "m2")
	Unit string `db:"unit" json:"unit"`

	// MinStock is the minimum-stock threshold used only for status
	// classification, never as a hard ledger constraint
	MinStock types.Quantity `db:"min_stock" json:"minStock"`

	// Description
	Description *string `db:"description" json:"description,omitempty"`
}

// NewItem creates a new Item with required fields.
func NewItem(code, name, unit string) *Item {
	return &Item{
		Catalog: entity.NewCatalog(code, name),
		Unit:    unit,
	}
}

// Validate implements entity.Validatable.
func (i *Item) Validate(ctx context.Context) error {
	if err := i.Catalog.Validate(ctx); err != nil {
		return err
	}
	if i.MinStock.IsNegative() {
		return apperror.NewValidation("minStock must not be negative").
			WithDetail("field", "minStock")
	}
	return nil
}

// ClassifyStock maps a total balance to a stock status.
func (i *Item) ClassifyStock(total types.Quantity) StockStatus {
	switch {
	case !total.IsPositive():
		return StatusOutOfStock
	case total < i.MinStock:
		return StatusBelowMinimum
	default:
		return StatusOK
	}
}
