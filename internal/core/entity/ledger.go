package entity

import (
	"fmt"
	"time"

	"stokado/internal/core/id"
	"stokado/internal/core/types"
)

// Direction defines the sign of a ledger movement.
type Direction string

const (
	// DirectionIn increases the partition balance
	DirectionIn Direction = "in"
	// DirectionOut decreases the partition balance
	DirectionOut Direction = "out"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionIn || d == DirectionOut
}

// Movement flags. Flagged movements are recorded, not rejected; each flag also
// lands in the operator integrity queue.
const (
	// FlagOverdraft marks a withdrawal beyond the last known positive balance.
	FlagOverdraft = "overdraft"
	// FlagCrossLocationInbound marks an inbound for an item that already has
	// positive balance at a different active location.
	FlagCrossLocationInbound = "cross_location_inbound"
)

// Flags is the set of warnings attached to a movement (stored as text[]).
type Flags []string

// Has reports whether the flag is present.
func (f Flags) Has(flag string) bool {
	for _, v := range f {
		if v == flag {
			return true
		}
	}
	return false
}

// PartitionKey identifies the unit of ordering and locking: one (item, location) pair.
type PartitionKey struct {
	ItemID     id.ID `db:"item_id" json:"itemId"`
	LocationID id.ID `db:"location_id" json:"locationId"`
}

// String renders a stable textual key, used for advisory lock hashing and
// cache keys.
func (k PartitionKey) String() string {
	return fmt.Sprintf("%s:%s", k.ItemID, k.LocationID)
}

// Movement is one entry of the stock ledger. Entries are append-ordered by
// (OccurredAt, Seq) within their partition; Seq is monotonically increasing
// per partition so backdated inserts still have a total order.
type Movement struct {
	// LineID is the unique identifier for this ledger line (UUIDv7)
	LineID id.ID `db:"line_id" json:"lineId"`

	// Partition dimensions
	ItemID     id.ID `db:"item_id" json:"itemId"`
	LocationID id.ID `db:"location_id" json:"locationId"`

	// Direction: in or out
	Direction Direction `db:"direction" json:"direction"`

	// Quantity is the movement magnitude, always stored positive
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// OccurredAt is the business timestamp (may be backdated)
	OccurredAt time.Time `db:"occurred_at" json:"occurredAt"`

	// Seq breaks ties between entries sharing OccurredAt (insertion order)
	Seq int64 `db:"seq" json:"seq"`

	// Reference is free text linking the movement to its origin document
	Reference string `db:"reference" json:"reference"`

	// Actor recorded the movement
	Actor string `db:"actor" json:"actor"`

	// RunningBalance is the materialized cumulative balance of the partition
	// up to and including this entry
	RunningBalance types.Quantity `db:"running_balance" json:"runningBalance"`

	// Flags carries recorded-not-rejected warnings
	Flags Flags `db:"flags" json:"flags,omitempty"`

	// CreatedAt is when the movement was inserted
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewMovement creates a movement with generated LineID. Seq and RunningBalance
// are assigned by the ledger store on append.
func NewMovement(itemID, locationID id.ID, direction Direction, qty types.Quantity, occurredAt time.Time, reference, actor string) Movement {
	return Movement{
		LineID:     id.New(),
		ItemID:     itemID,
		LocationID: locationID,
		Direction:  direction,
		Quantity:   qty,
		OccurredAt: occurredAt.UTC(),
		Reference:  reference,
		Actor:      actor,
		CreatedAt:  time.Now().UTC(),
	}
}

// Partition returns the movement's partition key.
func (m *Movement) Partition() PartitionKey {
	return PartitionKey{ItemID: m.ItemID, LocationID: m.LocationID}
}

// Signed returns quantity with sign applied: in = positive, out = negative.
func (m *Movement) Signed() types.Quantity {
	if m.Direction == DirectionOut {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// Before reports whether m precedes other in partition order (OccurredAt, Seq).
func (m *Movement) Before(other *Movement) bool {
	if m.OccurredAt.Equal(other.OccurredAt) {
		return m.Seq < other.Seq
	}
	return m.OccurredAt.Before(other.OccurredAt)
}

// PartitionHead is the most recent entry of one partition, projected for
// balance reads and the duplicate scanner. One query shape returns heads for
// many partitions at once.
type PartitionHead struct {
	ItemID         id.ID          `db:"item_id" json:"itemId"`
	LocationID     id.ID          `db:"location_id" json:"locationId"`
	Balance        types.Quantity `db:"running_balance" json:"balance"`
	LastMovementAt time.Time      `db:"occurred_at" json:"lastMovementAt"`
	LastSeq        int64          `db:"seq" json:"lastSeq"`
}
