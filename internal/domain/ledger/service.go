package ledger

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"stokado/internal/core/apperror"
	appctx "stokado/internal/core/context"
	"stokado/internal/core/entity"
	"stokado/internal/core/id"
	"stokado/internal/core/tx"
	"stokado/internal/core/types"
	"stokado/pkg/logger"
)

// Service is the Ledger Store: the only writer of movements and running
// balances. Every partition write holds the partition's exclusive lock for
// the duration of the cascading recompute.
type Service struct {
	repo      Repository
	locations LocationDirectory
	txm       tx.Manager
	issues    IssueRecorder // optional
	cache     BalanceCache  // optional
	audit     AuditTrail    // optional
}

// Options groups the service's optional collaborators.
type Options struct {
	Issues IssueRecorder
	Cache  BalanceCache
	Audit  AuditTrail
}

// NewService creates the ledger service.
func NewService(repo Repository, locations LocationDirectory, txm tx.Manager, opts Options) *Service {
	return &Service{
		repo:      repo,
		locations: locations,
		txm:       txm,
		issues:    opts.Issues,
		cache:     opts.Cache,
		audit:     opts.Audit,
	}
}

// AppendInput describes one movement to record.
type AppendInput struct {
	ItemID     id.ID
	LocationID id.ID
	Direction  entity.Direction
	Quantity   types.Quantity
	OccurredAt time.Time // zero means now
	Reference  string
	Actor      string // empty means actor from context

	// Consolidation marks an authorized drain or fill written by the
	// consolidation engine. The cross-location flag still applies but no
	// integrity issue is opened for it.
	Consolidation bool
}

// Append inserts a new ledger entry and recomputes every downstream balance
// of the partition.
//
// Policy for outbound movements:
//   - empty partition: rejected with INSUFFICIENT_BALANCE (orphan withdrawal,
//     stock cannot leave before it ever arrived)
//   - balance at or below zero: rejected with INSUFFICIENT_BALANCE
//   - balance positive but below quantity: allowed, flagged overdraft
//
// Inbound movements to a location that cannot accept stock are rejected.
// An inbound for an item holding positive balance at another active location
// is allowed but flagged cross-location-inbound.
func (s *Service) Append(ctx context.Context, in AppendInput) (*entity.Movement, error) {
	if !in.Direction.Valid() {
		return nil, apperror.NewValidation("direction must be 'in' or 'out'").
			WithDetail("direction", string(in.Direction))
	}
	if !in.Quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive").
			WithDetail("quantity", in.Quantity.String())
	}
	if id.IsNil(in.ItemID) || id.IsNil(in.LocationID) {
		return nil, apperror.NewValidation("item and location are required")
	}

	loc, err := s.locations.GetByID(ctx, in.LocationID)
	if err != nil {
		return nil, err
	}
	if in.Direction == entity.DirectionIn && !loc.CanAcceptStock() {
		return nil, apperror.NewInactiveLocation(loc.Code)
	}

	if in.OccurredAt.IsZero() {
		in.OccurredAt = time.Now().UTC()
	}
	if in.Actor == "" {
		in.Actor = appctx.ActorName(ctx)
	}

	key := entity.PartitionKey{ItemID: in.ItemID, LocationID: in.LocationID}

	var appended *entity.Movement
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockPartition(ctx, key); err != nil {
			return fmt.Errorf("lock partition: %w", err)
		}

		seq, err := s.repo.NextSeq(ctx, key)
		if err != nil {
			return fmt.Errorf("next seq: %w", err)
		}

		m := entity.NewMovement(in.ItemID, in.LocationID, in.Direction, in.Quantity, in.OccurredAt, in.Reference, in.Actor)
		m.Seq = seq

		pred, err := s.repo.Predecessor(ctx, key, m.OccurredAt, m.Seq)
		if err != nil {
			return fmt.Errorf("find predecessor: %w", err)
		}
		var prev types.Quantity
		if pred != nil {
			prev = pred.RunningBalance
		}

		switch m.Direction {
		case entity.DirectionOut:
			if pred == nil || !prev.IsPositive() {
				return apperror.NewInsufficientBalance(loc.Code, m.Quantity.Float64(), prev.Float64()).
					WithDetail("item_id", m.ItemID)
			}
			if prev < m.Quantity {
				m.Flags = append(m.Flags, entity.FlagOverdraft)
				s.recordIssue(ctx, NewIssue(IssueOverdraft, m.ItemID, m.LocationID, m.Quantity,
					fmt.Sprintf("withdrawal %s exceeds balance %s", m.Quantity, prev)).WithLine(m.LineID))
				logger.Warn(ctx, "overdraft recorded",
					"item_id", m.ItemID, "location", loc.Code,
					"requested", m.Quantity, "available", prev)
			}
		case entity.DirectionIn:
			elsewhere, err := s.positiveBalanceElsewhere(ctx, m.ItemID, m.LocationID)
			if err != nil {
				return err
			}
			if elsewhere {
				m.Flags = append(m.Flags, entity.FlagCrossLocationInbound)
				if !in.Consolidation {
					s.recordIssue(ctx, NewIssue(IssueCrossLocationInbound, m.ItemID, m.LocationID, m.Quantity,
						"inbound while positive balance exists at another active location").WithLine(m.LineID))
				}
			}
		}

		m.RunningBalance = prev + m.Signed()
		if err := s.repo.Insert(ctx, &m); err != nil {
			return fmt.Errorf("insert movement: %w", err)
		}

		if err := s.cascade(ctx, key, &m); err != nil {
			return err
		}

		appended = &m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, key)
	if s.audit != nil {
		s.audit.Record(ctx, "ledger_movement", appended.LineID, "append", appended)
	}
	logger.Info(ctx, "movement appended",
		"line_id", appended.LineID,
		"item_id", appended.ItemID,
		"location", loc.Code,
		"direction", appended.Direction,
		"quantity", appended.Quantity,
		"balance", appended.RunningBalance,
	)
	return appended, nil
}

// cascade recomputes every entry strictly after m in partition order.
// All downstream entries are walked; persistence is skipped for unchanged
// values to reduce write volume.
func (s *Service) cascade(ctx context.Context, key entity.PartitionKey, m *entity.Movement) error {
	following, err := s.repo.Following(ctx, key, m.OccurredAt, m.Seq)
	if err != nil {
		return fmt.Errorf("load following entries: %w", err)
	}

	balance := m.RunningBalance
	var changes []BalanceChange
	for i := range following {
		balance += following[i].Signed()
		if following[i].RunningBalance == balance {
			continue
		}
		changes = append(changes, BalanceChange{LineID: following[i].LineID, Balance: balance})
	}
	if len(changes) == 0 {
		return nil
	}
	if err := s.repo.UpdateBalances(ctx, changes); err != nil {
		return fmt.Errorf("update downstream balances: %w", err)
	}
	return nil
}

// positiveBalanceElsewhere reports whether the item holds positive balance at
// any other active location.
func (s *Service) positiveBalanceElsewhere(ctx context.Context, itemID, exceptLocation id.ID) (bool, error) {
	heads, err := s.repo.Heads(ctx, &itemID)
	if err != nil {
		return false, fmt.Errorf("load partition heads: %w", err)
	}

	var candidates []id.ID
	for _, h := range heads {
		if h.LocationID != exceptLocation && h.Balance.IsPositive() {
			candidates = append(candidates, h.LocationID)
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}

	locs, err := s.locations.GetMany(ctx, candidates)
	if err != nil {
		return false, err
	}
	for _, locID := range candidates {
		if l, ok := locs[locID]; ok && l.Active {
			return true, nil
		}
	}
	return false, nil
}

// CurrentBalance returns the balance of the partition's most recent committed
// entry, or zero if none. Reads are lock-free; an in-flight recompute is never
// observed because writers publish only committed values.
func (s *Service) CurrentBalance(ctx context.Context, itemID, locationID id.ID) (types.Quantity, error) {
	key := entity.PartitionKey{ItemID: itemID, LocationID: locationID}

	if s.cache != nil {
		if q, ok := s.cache.Get(ctx, key); ok {
			return q, nil
		}
	}

	head, err := s.repo.Latest(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("load latest entry: %w", err)
	}
	var balance types.Quantity
	if head != nil {
		balance = head.RunningBalance
	}

	// A writer may commit and invalidate between the read above and this
	// Set, re-caching the older value. The TTL bounds that staleness for
	// every writer, in-process ones included.
	if s.cache != nil {
		s.cache.Set(ctx, key, balance)
	}
	return balance, nil
}

// TotalBalance sums the item's current balances across all active locations.
func (s *Service) TotalBalance(ctx context.Context, itemID id.ID) (types.Quantity, error) {
	heads, err := s.repo.Heads(ctx, &itemID)
	if err != nil {
		return 0, fmt.Errorf("load partition heads: %w", err)
	}
	if len(heads) == 0 {
		return 0, nil
	}

	ids := make([]id.ID, 0, len(heads))
	for _, h := range heads {
		ids = append(ids, h.LocationID)
	}
	locs, err := s.locations.GetMany(ctx, ids)
	if err != nil {
		return 0, err
	}

	var total types.Quantity
	for _, h := range heads {
		if l, ok := locs[h.LocationID]; ok && l.Active {
			total += h.Balance
		}
	}
	return total, nil
}

// AuthoritativeLocation returns where the item's sellable stock lives: the
// active location with positive balance and the most recent movement, ties
// broken by highest balance. ok is false when no active location holds stock.
func (s *Service) AuthoritativeLocation(ctx context.Context, itemID id.ID) (id.ID, bool, error) {
	heads, err := s.repo.Heads(ctx, &itemID)
	if err != nil {
		return id.Nil(), false, fmt.Errorf("load partition heads: %w", err)
	}
	if len(heads) == 0 {
		return id.Nil(), false, nil
	}

	ids := make([]id.ID, 0, len(heads))
	for _, h := range heads {
		ids = append(ids, h.LocationID)
	}
	locs, err := s.locations.GetMany(ctx, ids)
	if err != nil {
		return id.Nil(), false, err
	}
	active := func(locationID id.ID) bool {
		l, ok := locs[locationID]
		return ok && l.Active
	}

	best, ok := BestLocation(heads, active)
	return best, ok, nil
}

// BestLocation applies the suggested-location heuristic over partition heads:
// positive balance at an active location, most recent movement first, ties
// broken by highest balance. "Where activity last happened", not "where the
// most stock is".
func BestLocation(heads []entity.PartitionHead, active func(id.ID) bool) (id.ID, bool) {
	var best *entity.PartitionHead
	for i := range heads {
		h := &heads[i]
		if !h.Balance.IsPositive() || !active(h.LocationID) {
			continue
		}
		if best == nil {
			best = h
			continue
		}
		switch {
		case h.LastMovementAt.After(best.LastMovementAt):
			best = h
		case h.LastMovementAt.Equal(best.LastMovementAt) && h.Balance > best.Balance:
			best = h
		}
	}
	if best == nil {
		return id.Nil(), false
	}
	return best.LocationID, true
}

// Recalculate runs a full forward recompute of one partition from its first
// entry. Used for repair and batch jobs. A partition opening with a
// withdrawal is reported to the operator queue and left as-is: balances still
// become internally consistent, the defect needs a human decision.
func (s *Service) Recalculate(ctx context.Context, itemID, locationID id.ID) error {
	key := entity.PartitionKey{ItemID: itemID, LocationID: locationID}

	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockPartition(ctx, key); err != nil {
			return fmt.Errorf("lock partition: %w", err)
		}

		entries, err := s.repo.Partition(ctx, key)
		if err != nil {
			return fmt.Errorf("load partition: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}

		if FirstIsOutbound(entries) {
			s.recordIssue(ctx, NewIssue(IssueOrphanWithdrawal, itemID, locationID, entries[0].Quantity,
				"partition opens with a withdrawal").WithLine(entries[0].LineID))
			logger.Warn(ctx, "orphan withdrawal partition detected",
				"item_id", itemID, "location_id", locationID)
		}

		changed := Recompute(entries)
		if len(changed) > 0 {
			changes := make([]BalanceChange, 0, len(changed))
			for _, i := range changed {
				changes = append(changes, BalanceChange{LineID: entries[i].LineID, Balance: entries[i].RunningBalance})
			}
			if err := s.repo.UpdateBalances(ctx, changes); err != nil {
				return fmt.Errorf("update recomputed balances: %w", err)
			}
			logger.Info(ctx, "partition recalculated",
				"item_id", itemID, "location_id", locationID, "rewritten", len(changed))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, key)
	return nil
}

// RepairAll recomputes every partition, chunk by chunk. Each partition is its
// own transaction and lock; nothing is held across chunks, so the run is
// resumable and never starves writers.
func (s *Service) RepairAll(ctx context.Context, chunkSize, workers int) error {
	if chunkSize <= 0 {
		chunkSize = 200
	}
	if workers <= 0 {
		workers = 4
	}

	var after *entity.PartitionKey
	var repaired int
	for {
		keys, err := s.repo.PartitionKeys(ctx, after, chunkSize)
		if err != nil {
			return fmt.Errorf("list partitions: %w", err)
		}
		if len(keys) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, key := range keys {
			key := key
			g.Go(func() error {
				return s.Recalculate(gctx, key.ItemID, key.LocationID)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		repaired += len(keys)
		last := keys[len(keys)-1]
		after = &last
	}

	logger.Info(ctx, "repair pass finished", "partitions", repaired)
	return nil
}

// LockPartitions takes the exclusive locks of several partitions of one item,
// in exactly the order given. Callers must order locationIDs by location code:
// that is the single fixed global order preventing deadlock between two
// consolidations running concurrently. Must be called inside a transaction;
// relocking a held partition later (e.g. by Append) is a no-op.
func (s *Service) LockPartitions(ctx context.Context, itemID id.ID, locationIDs []id.ID) error {
	for _, locID := range locationIDs {
		key := entity.PartitionKey{ItemID: itemID, LocationID: locID}
		if err := s.repo.LockPartition(ctx, key); err != nil {
			return fmt.Errorf("lock partition %s: %w", key, err)
		}
	}
	return nil
}

// InvalidateBalances drops cached balances for the given partitions. The
// consolidation engine calls it after commit: invalidations fired inside the
// transaction can be overwritten by a concurrent read of the pre-commit value.
func (s *Service) InvalidateBalances(ctx context.Context, itemID id.ID, locationIDs []id.ID) {
	for _, locID := range locationIDs {
		s.invalidate(ctx, entity.PartitionKey{ItemID: itemID, LocationID: locID})
	}
}

// History lists an item's movements, newest first.
func (s *Service) History(ctx context.Context, itemID id.ID, filter HistoryFilter) ([]entity.Movement, error) {
	return s.repo.History(ctx, itemID, filter)
}

// Heads exposes latest-entry-per-partition reads for the scanner.
func (s *Service) Heads(ctx context.Context, itemID *id.ID) ([]entity.PartitionHead, error) {
	return s.repo.Heads(ctx, itemID)
}

func (s *Service) recordIssue(ctx context.Context, issue Issue) {
	if s.issues == nil {
		return
	}
	if err := s.issues.Record(ctx, issue); err != nil {
		logger.Error(ctx, "record integrity issue failed", "kind", issue.Kind, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, key entity.PartitionKey) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, key)
	}
}
