package dto

import (
	"time"

	"stokado/internal/core/id"
	"stokado/internal/core/types"
)

// AppendMovementRequest records one stock movement. Quantity accepts a JSON
// number or a decimal string; precision beyond four fractional digits is
// rejected upstream by quantity parsing.
type AppendMovementRequest struct {
	ItemID     id.ID          `json:"itemId" binding:"required"`
	LocationID id.ID          `json:"locationId" binding:"required"`
	Direction  string         `json:"direction" binding:"required"`
	Quantity   types.Quantity `json:"quantity" binding:"required"`
	OccurredAt *time.Time     `json:"occurredAt"`
	Reference  string         `json:"reference"`
}

// BalanceResponse is one partition's current balance.
type BalanceResponse struct {
	ItemID     id.ID          `json:"itemId"`
	LocationID id.ID          `json:"locationId"`
	Balance    types.Quantity `json:"balance"`
}

// TotalBalanceResponse sums an item across active locations.
type TotalBalanceResponse struct {
	ItemID id.ID          `json:"itemId"`
	Total  types.Quantity `json:"total"`
}

// AuthoritativeLocationResponse names where an item's sellable stock lives.
type AuthoritativeLocationResponse struct {
	ItemID     id.ID  `json:"itemId"`
	LocationID *id.ID `json:"locationId"`
	Found      bool   `json:"found"`
}

// RecalculateRequest recomputes one partition.
type RecalculateRequest struct {
	ItemID     id.ID `json:"itemId" binding:"required"`
	LocationID id.ID `json:"locationId" binding:"required"`
}

// ResolveIssueRequest closes an integrity issue.
type ResolveIssueRequest struct {
	Note string `json:"note"`
}
