package dto

import (
	"stokado/internal/core/types"
	"stokado/internal/domain/catalogs/item"
)

// CreateItemRequest creates a catalog item.
type CreateItemRequest struct {
	Code        string          `json:"code" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Unit        string          `json:"unit" binding:"required"`
	MinStock    *types.Quantity `json:"minStock"`
	Description *string         `json:"description"`
}

// UpdateItemRequest rewrites an item's mutable fields. Version carries the
// optimistic concurrency token the client last read.
type UpdateItemRequest struct {
	Name        string          `json:"name" binding:"required"`
	Unit        string          `json:"unit" binding:"required"`
	MinStock    *types.Quantity `json:"minStock"`
	Description *string         `json:"description"`
	Version     int             `json:"version" binding:"min=0"`
}

// ItemStockResponse is an item together with its ledger state.
type ItemStockResponse struct {
	Item         *item.Item       `json:"item"`
	TotalBalance types.Quantity   `json:"totalBalance"`
	Status       item.StockStatus `json:"status"`
}

// CreateLocationRequest creates a location.
type CreateLocationRequest struct {
	Code    string  `json:"code" binding:"required"`
	Name    string  `json:"name" binding:"required"`
	Address *string `json:"address"`
}

// UpdateLocationRequest rewrites a location's mutable fields.
type UpdateLocationRequest struct {
	Name    string  `json:"name" binding:"required"`
	Address *string `json:"address"`
	Version int     `json:"version" binding:"min=0"`
}

// SetActiveRequest toggles a location's operational flag.
type SetActiveRequest struct {
	Active bool `json:"active"`
}
