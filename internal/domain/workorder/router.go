package workorder

import (
	"context"
	"fmt"

	"stokado/internal/core/id"
	"stokado/internal/core/tx"
	"stokado/internal/core/types"
	"stokado/pkg/logger"
)

// StockAuthority is the view of the ledger the router needs to decide where
// an item's sellable stock actually lives.
type StockAuthority interface {
	CurrentBalance(ctx context.Context, itemID, locationID id.ID) (types.Quantity, error)
	AuthoritativeLocation(ctx context.Context, itemID id.ID) (id.ID, bool, error)
}

// RerouteResult reports what the router did for one (item, from->to) move.
type RerouteResult struct {
	Repointed []id.ID     `json:"repointed"`
	Split     []SplitPair `json:"split"`
}

// SplitPair links an original order to the order split off from it.
type SplitPair struct {
	OriginalID id.ID `json:"originalId"`
	NewID      id.ID `json:"newId"`
}

// SweepResult summarises one consistency sweep pass.
type SweepResult struct {
	Checked   int `json:"checked"`
	Flagged   int `json:"flagged"`
	Repointed int `json:"repointed"`
	Split     int `json:"split"`
}

// Router keeps open work orders consistent with where stock actually lives.
// It is the only writer of a work order's location pointer outside order
// intake.
type Router struct {
	repo  Repository
	stock StockAuthority
	txm   tx.Manager
}

// NewRouter creates a router.
func NewRouter(repo Repository, stock StockAuthority, txm tx.Manager) *Router {
	return &Router{repo: repo, stock: stock, txm: txm}
}

// Reroute re-points or splits every open work order referencing
// (item, fromLocation) after the item's stock moved to toLocation.
//
// An order is re-pointed in place when every other item it references either
// has its authoritative location at toLocation already, or is the item being
// moved. Otherwise the order is split: the moved item's lines go to a new
// order at toLocation (assignee and priority copied), the rest stay at
// fromLocation. An original left with zero lines is deleted.
//
// Called inside a consolidation transaction the work joins it; standalone
// calls get their own transaction.
func (r *Router) Reroute(ctx context.Context, itemID, fromLocation, toLocation id.ID) (RerouteResult, error) {
	var result RerouteResult

	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		orders, err := r.repo.ListOpenByItemAndLocation(ctx, itemID, fromLocation)
		if err != nil {
			return fmt.Errorf("list affected orders: %w", err)
		}

		for _, order := range orders {
			repoint, err := r.canRepoint(ctx, order, itemID, toLocation)
			if err != nil {
				return err
			}

			if repoint {
				if err := r.repo.UpdateLocation(ctx, order.ID, toLocation); err != nil {
					return fmt.Errorf("repoint order %s: %w", order.ID, err)
				}
				result.Repointed = append(result.Repointed, order.ID)
				continue
			}

			pair, err := r.split(ctx, order, itemID, toLocation)
			if err != nil {
				return err
			}
			result.Split = append(result.Split, pair)
		}
		return nil
	})
	if err != nil {
		return RerouteResult{}, err
	}

	if len(result.Repointed) > 0 || len(result.Split) > 0 {
		logger.Info(ctx, "work orders rerouted",
			"item_id", itemID,
			"from", fromLocation,
			"to", toLocation,
			"repointed", len(result.Repointed),
			"split", len(result.Split),
		)
	}
	return result, nil
}

// canRepoint checks whether the whole order can move to toLocation.
func (r *Router) canRepoint(ctx context.Context, order *WorkOrder, movedItem, toLocation id.ID) (bool, error) {
	for _, otherItem := range order.OtherItems(movedItem) {
		auth, ok, err := r.stock.AuthoritativeLocation(ctx, otherItem)
		if err != nil {
			return false, fmt.Errorf("authoritative location of %s: %w", otherItem, err)
		}
		if !ok || auth != toLocation {
			return false, nil
		}
	}
	return true, nil
}

// split carves the moved item's lines into a new order at toLocation.
// No line is duplicated or dropped: every line ends up in exactly one order.
func (r *Router) split(ctx context.Context, order *WorkOrder, movedItem, toLocation id.ID) (SplitPair, error) {
	moved := order.LinesFor(movedItem)

	split := NewWorkOrder(splitNumber(order, toLocation), toLocation)
	split.Assignee = order.Assignee
	split.Priority = order.Priority
	for _, l := range moved {
		split.AddLine(l.ItemID, l.Quantity)
	}
	if err := r.repo.Create(ctx, split); err != nil {
		return SplitPair{}, fmt.Errorf("create split order: %w", err)
	}

	movedIDs := make([]id.ID, 0, len(moved))
	for _, l := range moved {
		movedIDs = append(movedIDs, l.ID)
	}
	// Decide before DeleteLines mutates the stored order.
	leftEmpty := len(moved) == len(order.Lines)
	if err := r.repo.DeleteLines(ctx, order.ID, movedIDs); err != nil {
		return SplitPair{}, fmt.Errorf("remove moved lines: %w", err)
	}

	if leftEmpty {
		// Nothing left at the original location.
		if err := r.repo.Delete(ctx, order.ID); err != nil {
			return SplitPair{}, fmt.Errorf("delete emptied order: %w", err)
		}
	} else if err := r.repo.SetNeedsFix(ctx, order.ID, false); err != nil {
		return SplitPair{}, fmt.Errorf("clear needs-fix: %w", err)
	}

	return SplitPair{OriginalID: order.ID, NewID: split.ID}, nil
}

func splitNumber(order *WorkOrder, toLocation id.ID) string {
	return fmt.Sprintf("%s-R%s", order.Number, toLocation.String()[:4])
}

// MarkStale flags every open order referencing (item, location) as
// needs-fix. Bulk/offline import paths call it after moving stock outside a
// consolidation, so the periodic sweep picks the orders up.
func (r *Router) MarkStale(ctx context.Context, itemID, locationID id.ID) (int, error) {
	orders, err := r.repo.ListOpenByItemAndLocation(ctx, itemID, locationID)
	if err != nil {
		return 0, fmt.Errorf("list affected orders: %w", err)
	}
	for _, order := range orders {
		if err := r.repo.SetNeedsFix(ctx, order.ID, true); err != nil {
			return 0, fmt.Errorf("flag order %s: %w", order.ID, err)
		}
	}
	return len(orders), nil
}

// Sweep walks open orders and repairs any whose location no longer holds a
// referenced item's stock. It catches moves the live reroute hook missed.
func (r *Router) Sweep(ctx context.Context, limit int) (SweepResult, error) {
	if limit <= 0 {
		limit = 500
	}

	var result SweepResult
	orders, err := r.repo.ListOpen(ctx, false, limit)
	if err != nil {
		return result, fmt.Errorf("list open orders: %w", err)
	}

	for _, order := range orders {
		result.Checked++
		for _, item := range distinctItems(order.Lines) {
			balance, err := r.stock.CurrentBalance(ctx, item, order.LocationID)
			if err != nil {
				return result, fmt.Errorf("balance of %s: %w", item, err)
			}
			if balance.IsPositive() {
				continue
			}
			auth, ok, err := r.stock.AuthoritativeLocation(ctx, item)
			if err != nil {
				return result, fmt.Errorf("authoritative location of %s: %w", item, err)
			}
			if !ok || auth == order.LocationID {
				continue
			}

			if err := r.repo.SetNeedsFix(ctx, order.ID, true); err != nil {
				return result, fmt.Errorf("flag order %s: %w", order.ID, err)
			}
			result.Flagged++

			rr, err := r.Reroute(ctx, item, order.LocationID, auth)
			if err != nil {
				return result, err
			}
			result.Repointed += len(rr.Repointed)
			result.Split += len(rr.Split)
			break // order was rewritten, move on
		}
	}
	return result, nil
}

func distinctItems(lines []Line) []id.ID {
	seen := make(map[id.ID]struct{})
	var out []id.ID
	for _, l := range lines {
		if _, ok := seen[l.ItemID]; ok {
			continue
		}
		seen[l.ItemID] = struct{}{}
		out = append(out, l.ItemID)
	}
	return out
}
