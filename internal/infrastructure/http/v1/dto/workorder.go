package dto

import (
	"stokado/internal/core/id"
	"stokado/internal/core/types"
)

// CreateWorkOrderRequest opens a work order at a location.
type CreateWorkOrderRequest struct {
	Number     string                 `json:"number" binding:"required"`
	LocationID id.ID                  `json:"locationId" binding:"required"`
	Assignee   string                 `json:"assignee"`
	Priority   int                    `json:"priority"`
	Lines      []WorkOrderLineRequest `json:"lines" binding:"required,min=1"`
}

// WorkOrderLineRequest is one line of a new order.
type WorkOrderLineRequest struct {
	ItemID   id.ID          `json:"itemId" binding:"required"`
	Quantity types.Quantity `json:"quantity" binding:"required"`
}

// ConsolidateRequest merges an item's balances into the target location.
type ConsolidateRequest struct {
	ItemID   id.ID `json:"itemId" binding:"required"`
	TargetID id.ID `json:"targetLocationId" binding:"required"`
}
