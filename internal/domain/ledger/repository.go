// Package ledger provides the per-location stock ledger: a durable ordered
// log of signed quantity movements partitioned by (item, location), with a
// materialized running balance per entry.
package ledger

import (
	"context"
	"time"

	"stokado/internal/core/entity"
	"stokado/internal/core/id"
	"stokado/internal/core/types"
	"stokado/internal/domain/catalogs/location"
)

// Repository defines persistence operations for the ledger.
//
// Predecessor/Following navigate the partition's (OccurredAt, Seq) total
// order, not insertion order: appends may be backdated, so the immediately
// preceding entry is not necessarily the most recently inserted row.
type Repository interface {
	// Insert persists a new movement with its computed running balance.
	Insert(ctx context.Context, m *entity.Movement) error

	// UpdateBalances rewrites the materialized balances of the given lines.
	// The cascading recompute calls it once per mutation with only the lines
	// whose value actually changed.
	UpdateBalances(ctx context.Context, changes []BalanceChange) error

	// NextSeq returns the next tie-break sequence for the partition
	// (max existing + 1, insertion order within equal timestamps).
	NextSeq(ctx context.Context, key entity.PartitionKey) (int64, error)

	// Predecessor returns the entry immediately before (at, seq) in partition
	// order, or nil when the partition has no earlier entry.
	Predecessor(ctx context.Context, key entity.PartitionKey, at time.Time, seq int64) (*entity.Movement, error)

	// Following returns every entry strictly after (at, seq), ordered.
	Following(ctx context.Context, key entity.PartitionKey, at time.Time, seq int64) ([]entity.Movement, error)

	// Latest returns the partition's most recent entry, or nil when empty.
	Latest(ctx context.Context, key entity.PartitionKey) (*entity.Movement, error)

	// Partition returns the whole partition ordered by (OccurredAt, Seq).
	Partition(ctx context.Context, key entity.PartitionKey) ([]entity.Movement, error)

	// Heads returns the latest entry of every partition in one query shape,
	// optionally restricted to one item.
	Heads(ctx context.Context, itemID *id.ID) ([]entity.PartitionHead, error)

	// History lists movements of an item, newest first.
	History(ctx context.Context, itemID id.ID, filter HistoryFilter) ([]entity.Movement, error)

	// PartitionKeys pages through all partition keys in a stable order.
	// The repair job iterates with it so no lock spans the whole run.
	PartitionKeys(ctx context.Context, after *entity.PartitionKey, limit int) ([]entity.PartitionKey, error)

	// LockPartition takes the partition's exclusive transaction-scoped lock.
	// Must be called inside a transaction; reentrant within one transaction.
	LockPartition(ctx context.Context, key entity.PartitionKey) error
}

// BalanceChange is one rewritten running balance.
type BalanceChange struct {
	LineID  id.ID
	Balance types.Quantity
}

// HistoryFilter narrows movement history queries.
type HistoryFilter struct {
	LocationID *id.ID
	From       *time.Time
	To         *time.Time
	Limit      int
	Offset     int
}

// LocationDirectory is the slice of the location catalog the ledger needs:
// resolving codes and active flags for policy checks and lock ordering.
type LocationDirectory interface {
	GetByID(ctx context.Context, locationID id.ID) (*location.Location, error)
	GetMany(ctx context.Context, ids []id.ID) (map[id.ID]*location.Location, error)
}

// BalanceCache is an explicit, invalidated-on-write cache of partition
// balances. The staleness window is the cache TTL: every partition write
// invalidates its key, and any value that slips past an invalidation, from
// a bypassing bulk import or a racing read-then-set, expires with it.
// Implementations are best-effort: they log failures and never return errors
// into the ledger path.
type BalanceCache interface {
	Get(ctx context.Context, key entity.PartitionKey) (types.Quantity, bool)
	Set(ctx context.Context, key entity.PartitionKey, balance types.Quantity)
	Invalidate(ctx context.Context, key entity.PartitionKey)
}

// AuditTrail records ledger mutations for the audit log, best effort:
// implementations log and continue on failure, they never fail the mutation.
type AuditTrail interface {
	Record(ctx context.Context, entityType string, entityID id.ID, action string, payload any)
}
