// Package workorder provides downstream work items: external fulfillment
// tasks that reference one location per order and one item per line. The
// ledger does not own them; the router is the only writer of their location
// pointer outside order intake itself.
package workorder

import (
	"context"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/types"
)

// Status is the work order lifecycle state.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// Line is one item position of a work order.
type Line struct {
	ID       id.ID          `db:"id" json:"id"`
	OrderID  id.ID          `db:"order_id" json:"orderId"`
	ItemID   id.ID          `db:"item_id" json:"itemId"`
	Quantity types.Quantity `db:"quantity" json:"quantity"`
}

// WorkOrder is a pending fulfillment task pointing at the location where it
// expects to find its items' stock.
//
// Location-consistency state machine: consistent -> (stock moves) ->
// needs-fix -> (router runs) -> consistent. NeedsLocationFix is persisted so
// a periodic sweep can find orders the live hook missed, e.g. when the move
// happened through a bulk/offline path.
type WorkOrder struct {
	ID         id.ID  `db:"id" json:"id"`
	Number     string `db:"number" json:"number"`
	LocationID id.ID  `db:"location_id" json:"locationId"`
	Status     Status `db:"status" json:"status"`

	NeedsLocationFix bool `db:"needs_location_fix" json:"needsLocationFix"`

	Assignee string `db:"assignee" json:"assignee,omitempty"`
	Priority int    `db:"priority" json:"priority"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`

	Lines []Line `db:"-" json:"lines"`
}

// NewWorkOrder creates an open work order at the given location.
func NewWorkOrder(number string, locationID id.ID) *WorkOrder {
	now := time.Now().UTC()
	return &WorkOrder{
		ID:         id.New(),
		Number:     number,
		LocationID: locationID,
		Status:     StatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// AddLine appends a line for an item.
func (w *WorkOrder) AddLine(itemID id.ID, qty types.Quantity) *Line {
	line := Line{
		ID:       id.New(),
		OrderID:  w.ID,
		ItemID:   itemID,
		Quantity: qty,
	}
	w.Lines = append(w.Lines, line)
	return &w.Lines[len(w.Lines)-1]
}

// LinesFor returns the order's lines referencing the given item.
func (w *WorkOrder) LinesFor(itemID id.ID) []Line {
	var out []Line
	for _, l := range w.Lines {
		if l.ItemID == itemID {
			out = append(out, l)
		}
	}
	return out
}

// OtherItems returns the distinct items referenced by lines other than itemID.
func (w *WorkOrder) OtherItems(itemID id.ID) []id.ID {
	seen := make(map[id.ID]struct{})
	var out []id.ID
	for _, l := range w.Lines {
		if l.ItemID == itemID {
			continue
		}
		if _, ok := seen[l.ItemID]; ok {
			continue
		}
		seen[l.ItemID] = struct{}{}
		out = append(out, l.ItemID)
	}
	return out
}

// Validate implements entity.Validatable.
func (w *WorkOrder) Validate(ctx context.Context) error {
	if w.Number == "" {
		return apperror.NewValidation("number is required").WithDetail("field", "number")
	}
	if id.IsNil(w.LocationID) {
		return apperror.NewValidation("location is required").WithDetail("field", "locationId")
	}
	for i, l := range w.Lines {
		if id.IsNil(l.ItemID) {
			return apperror.NewValidation("line item is required").WithDetail("line", i)
		}
		if !l.Quantity.IsPositive() {
			return apperror.NewValidation("line quantity must be positive").WithDetail("line", i)
		}
	}
	return nil
}
