package consolidation

import (
	"context"
	"fmt"
	"sort"

	"stokado/internal/core/apperror"
	"stokado/internal/core/entity"
	"stokado/internal/core/id"
	"stokado/internal/core/tx"
	"stokado/internal/core/types"
	"stokado/internal/domain/ledger"
	"stokado/internal/domain/workorder"
	"stokado/pkg/logger"
)

// Movement references written by the engine.
const (
	RefDrain = "drain-for-consolidation"
	RefFill  = "received-from-consolidation"
)

// EventConsolidationCompleted is published through the outbox after a
// successful run. Relay and delivery happen asynchronously; a delivery
// failure can never roll the consolidation back.
const EventConsolidationCompleted = "ConsolidationCompleted"

// Router re-points downstream work orders after stock moved.
type Router interface {
	Reroute(ctx context.Context, itemID, fromLocation, toLocation id.ID) (workorder.RerouteResult, error)
}

// EventPublisher writes post-commit events, transactionally (outbox pattern).
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, aggregateID id.ID, payload any) error
}

// Result reports one consolidation run.
type Result struct {
	ItemID     id.ID          `json:"itemId"`
	Target     id.ID          `json:"target"`
	Drained    []id.ID        `json:"drained"`
	TotalMoved types.Quantity `json:"totalMoved"`
	Repointed  int            `json:"repointed"`
	Split      int            `json:"split"`
}

// CompletedEvent is the outbox payload of a successful consolidation.
type CompletedEvent struct {
	ItemID     id.ID          `json:"itemId"`
	Target     id.ID          `json:"target"`
	Drained    []id.ID        `json:"drained"`
	TotalMoved types.Quantity `json:"totalMoved"`
	Actor      string         `json:"actor"`
}

// Engine merges an item's scattered balances into one target location:
// all drains, all fills and all router updates commit as one transaction or
// not at all.
type Engine struct {
	ledger    *ledger.Service
	locations ledger.LocationDirectory
	router    Router
	txm       tx.Manager
	events    EventPublisher // optional
}

// NewEngine creates a consolidation engine.
func NewEngine(ledgerSvc *ledger.Service, locations ledger.LocationDirectory, router Router, txm tx.Manager, events EventPublisher) *Engine {
	return &Engine{
		ledger:    ledgerSvc,
		locations: locations,
		router:    router,
		txm:       txm,
		events:    events,
	}
}

// Consolidate drains every location holding a positive balance of the item
// (except the target) and fills the target, adding to its existing balance.
//
// Sources are processed in ascending location-code order; combined with
// up-front lock acquisition in that same order this fixes the global lock
// order and prevents deadlock against a concurrent consolidation of the same
// item toward a different target.
//
// Running it again after a successful run finds no positive-balance sources
// and is a no-op with an empty drained list.
func (e *Engine) Consolidate(ctx context.Context, itemID, targetID id.ID) (Result, error) {
	result := Result{ItemID: itemID, Target: targetID}
	if id.IsNil(itemID) || id.IsNil(targetID) {
		return result, apperror.NewValidation("item and target location are required")
	}

	target, err := e.locations.GetByID(ctx, targetID)
	if err != nil {
		return result, err
	}
	if !target.CanAcceptStock() {
		return result, apperror.NewInactiveLocation(target.Code)
	}

	// Candidate sources from committed state. The authoritative set is
	// re-read under locks inside the transaction.
	candidates, err := e.sourceCandidates(ctx, itemID, targetID)
	if err != nil {
		return result, err
	}
	if len(candidates) == 0 {
		logger.Info(ctx, "consolidation no-op, nothing to drain", "item_id", itemID, "target", target.Code)
		return result, nil
	}

	lockOrder, codes, err := e.lockOrder(ctx, append(candidates, targetID))
	if err != nil {
		return result, err
	}

	err = e.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := e.ledger.LockPartitions(ctx, itemID, lockOrder); err != nil {
			return err
		}

		// Re-read balances now that the partitions are locked; a drain that
		// raced us may have emptied a source already. Only partitions we
		// locked are drained, anything that gained balance since the first
		// read is left for the next run.
		locked := make(map[id.ID]struct{}, len(candidates))
		for _, locID := range candidates {
			locked[locID] = struct{}{}
		}
		sources, err := e.sourceBalances(ctx, itemID, targetID, locked)
		if err != nil {
			return err
		}

		for _, src := range sources {
			if _, err := e.ledger.Append(ctx, ledger.AppendInput{
				ItemID:        itemID,
				LocationID:    src.LocationID,
				Direction:     entity.DirectionOut,
				Quantity:      src.Balance,
				Reference:     RefDrain,
				Consolidation: true,
			}); err != nil {
				return fmt.Errorf("drain %s: %w", codes[src.LocationID], err)
			}
			if _, err := e.ledger.Append(ctx, ledger.AppendInput{
				ItemID:        itemID,
				LocationID:    targetID,
				Direction:     entity.DirectionIn,
				Quantity:      src.Balance,
				Reference:     RefFill,
				Consolidation: true,
			}); err != nil {
				return fmt.Errorf("fill %s: %w", target.Code, err)
			}
			result.Drained = append(result.Drained, src.LocationID)
			result.TotalMoved += src.Balance
		}

		for _, src := range sources {
			rr, err := e.router.Reroute(ctx, itemID, src.LocationID, targetID)
			if err != nil {
				return fmt.Errorf("reroute orders from %s: %w", codes[src.LocationID], err)
			}
			result.Repointed += len(rr.Repointed)
			result.Split += len(rr.Split)
		}

		if e.events != nil && len(result.Drained) > 0 {
			event := CompletedEvent{
				ItemID:     itemID,
				Target:     targetID,
				Drained:    result.Drained,
				TotalMoved: result.TotalMoved,
			}
			if err := e.events.Publish(ctx, EventConsolidationCompleted, itemID, event); err != nil {
				return fmt.Errorf("publish completion event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{ItemID: itemID, Target: targetID}, apperror.NewConsolidationAborted(itemID.String(), err).
			WithDetail("target", target.Code)
	}

	e.ledger.InvalidateBalances(ctx, itemID, lockOrder)

	logger.Info(ctx, "consolidation committed",
		"item_id", itemID,
		"target", target.Code,
		"drained", len(result.Drained),
		"total_moved", result.TotalMoved,
		"repointed", result.Repointed,
		"split", result.Split,
	)
	return result, nil
}

// sourceCandidates returns locations with positive balance, target excluded.
// Inactive locations are drained too: they only stop being search targets,
// their stock still needs to come home.
func (e *Engine) sourceCandidates(ctx context.Context, itemID, targetID id.ID) ([]id.ID, error) {
	heads, err := e.ledger.Heads(ctx, &itemID)
	if err != nil {
		return nil, fmt.Errorf("load partition heads: %w", err)
	}
	var out []id.ID
	for _, h := range heads {
		if h.LocationID != targetID && h.Balance.IsPositive() {
			out = append(out, h.LocationID)
		}
	}
	return out, nil
}

type sourceBalance struct {
	LocationID id.ID
	Balance    types.Quantity
	code       string
}

// sourceBalances re-reads balances under locks and orders them by location
// code ascending, the same fixed order the locks were taken in.
func (e *Engine) sourceBalances(ctx context.Context, itemID, targetID id.ID, locked map[id.ID]struct{}) ([]sourceBalance, error) {
	heads, err := e.ledger.Heads(ctx, &itemID)
	if err != nil {
		return nil, fmt.Errorf("reload partition heads: %w", err)
	}

	var out []sourceBalance
	var ids []id.ID
	for _, h := range heads {
		if h.LocationID == targetID || !h.Balance.IsPositive() {
			continue
		}
		if _, ok := locked[h.LocationID]; !ok {
			continue
		}
		out = append(out, sourceBalance{LocationID: h.LocationID, Balance: h.Balance})
		ids = append(ids, h.LocationID)
	}
	if len(out) == 0 {
		return nil, nil
	}

	locs, err := e.locations.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range out {
		if l, ok := locs[out[i].LocationID]; ok {
			out[i].code = l.Code
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].code < out[j].code })
	return out, nil
}

// lockOrder resolves codes and returns the partition lock order:
// lexicographic by location code, target included.
func (e *Engine) lockOrder(ctx context.Context, locationIDs []id.ID) ([]id.ID, map[id.ID]string, error) {
	locs, err := e.locations.GetMany(ctx, locationIDs)
	if err != nil {
		return nil, nil, err
	}

	codes := make(map[id.ID]string, len(locs))
	ordered := make([]id.ID, 0, len(locationIDs))
	for _, locID := range locationIDs {
		l, ok := locs[locID]
		if !ok {
			return nil, nil, apperror.NewNotFound("location", locID)
		}
		codes[locID] = l.Code
		ordered = append(ordered, locID)
	}
	sort.Slice(ordered, func(i, j int) bool { return codes[ordered[i]] < codes[ordered[j]] })
	return ordered, codes, nil
}
