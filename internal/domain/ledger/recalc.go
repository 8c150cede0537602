package ledger

import (
	"sort"

	"stokado/internal/core/entity"
	"stokado/internal/core/types"
)

// Recompute recalculates running balances over one partition, in place.
// Entries must already be ordered by (OccurredAt, Seq); the first entry starts
// from a zero opening balance. Every entry is walked even when a recomputed
// value matches the stored one, because an upstream quantity change
// invalidates everything downstream regardless of apparent short-circuits.
// The returned indexes are the entries whose stored balance actually changed,
// so callers can limit write volume to those.
//
// Recompute is a pure function over the slice: safe to run concurrently for
// different partitions, serialized within one partition by the store's locks.
func Recompute(entries []entity.Movement) []int {
	var changed []int
	var balance types.Quantity
	for i := range entries {
		balance += entries[i].Signed()
		if entries[i].RunningBalance != balance {
			entries[i].RunningBalance = balance
			changed = append(changed, i)
		}
	}
	return changed
}

// SortPartition orders entries by (OccurredAt, Seq), the partition total order.
func SortPartition(entries []entity.Movement) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Before(&entries[j])
	})
}

// FirstIsOutbound reports whether a partition's first chronological entry is a
// withdrawal. Such partitions violate the no-phantom-balance invariant and are
// surfaced to the operator queue, never auto-corrected: the true origin
// location of the stock is ambiguous.
func FirstIsOutbound(entries []entity.Movement) bool {
	return len(entries) > 0 && entries[0].Direction == entity.DirectionOut
}
