// Package consolidation finds items scattered across locations and merges
// their balances into a single target location atomically.
package consolidation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stokado/internal/core/entity"
	"stokado/internal/core/id"
	"stokado/internal/core/tx"
	"stokado/internal/core/types"
	"stokado/internal/domain/ledger"
)

// HeadSource provides latest-entry-per-partition reads. Satisfied by the
// ledger service; one query shape, never one query per item/location.
type HeadSource interface {
	Heads(ctx context.Context, itemID *id.ID) ([]entity.PartitionHead, error)
}

// LocationBalance is one location's share of a scattered item.
type LocationBalance struct {
	LocationID     id.ID          `json:"locationId"`
	Code           string         `json:"code"`
	Balance        types.Quantity `json:"balance"`
	LastMovementAt time.Time      `json:"lastMovementAt"`
}

// Candidate is an item holding positive balance in more than one active
// location, with the scanner's suggested merge target.
type Candidate struct {
	ItemID            id.ID             `json:"itemId"`
	Locations         []LocationBalance `json:"locations"`
	SuggestedLocation id.ID             `json:"suggestedLocation"`
}

// Scanner is the read-only analysis side of consolidation.
type Scanner struct {
	heads     HeadSource
	locations ledger.LocationDirectory
	txm       tx.ReadOnlyManager
}

// NewScanner creates a scanner.
func NewScanner(heads HeadSource, locations ledger.LocationDirectory, txm tx.ReadOnlyManager) *Scanner {
	return &Scanner{heads: heads, locations: locations, txm: txm}
}

// FindMultiLocationItems returns every item with strictly positive balance in
// more than one active location. The suggested target is the location where
// activity last happened, ties broken by highest balance.
//
// Heads and location states are read inside one read-only transaction so a
// concurrent consolidation cannot produce a half-updated candidate list.
func (s *Scanner) FindMultiLocationItems(ctx context.Context) ([]Candidate, error) {
	var candidates []Candidate
	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		var scanErr error
		candidates, scanErr = s.scan(ctx)
		return scanErr
	})
	if err != nil {
		return nil, err
	}
	return candidates, nil
}

func (s *Scanner) scan(ctx context.Context) ([]Candidate, error) {
	heads, err := s.heads.Heads(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("load partition heads: %w", err)
	}
	if len(heads) == 0 {
		return nil, nil
	}

	locIDs := make(map[id.ID]struct{})
	byItem := make(map[id.ID][]entity.PartitionHead)
	for _, h := range heads {
		if !h.Balance.IsPositive() {
			continue
		}
		byItem[h.ItemID] = append(byItem[h.ItemID], h)
		locIDs[h.LocationID] = struct{}{}
	}

	ids := make([]id.ID, 0, len(locIDs))
	for locID := range locIDs {
		ids = append(ids, locID)
	}
	locs, err := s.locations.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	active := func(locationID id.ID) bool {
		l, ok := locs[locationID]
		return ok && l.Active
	}

	var candidates []Candidate
	for itemID, group := range byItem {
		var balances []LocationBalance
		for _, h := range group {
			if !active(h.LocationID) {
				continue
			}
			balances = append(balances, LocationBalance{
				LocationID:     h.LocationID,
				Code:           locs[h.LocationID].Code,
				Balance:        h.Balance,
				LastMovementAt: h.LastMovementAt,
			})
		}
		if len(balances) < 2 {
			continue
		}

		suggested, _ := ledger.BestLocation(group, active)
		sort.Slice(balances, func(i, j int) bool {
			return balances[i].Code < balances[j].Code
		})
		candidates = append(candidates, Candidate{
			ItemID:            itemID,
			Locations:         balances,
			SuggestedLocation: suggested,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ItemID.String() < candidates[j].ItemID.String()
	})
	return candidates, nil
}
