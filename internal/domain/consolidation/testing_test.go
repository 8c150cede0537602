package consolidation

import (
	"context"
	"errors"
	"sort"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/entity"
	"stokado/internal/core/id"
	"stokado/internal/core/types"
	"stokado/internal/domain/catalogs/location"
	"stokado/internal/domain/ledger"
	"stokado/internal/domain/workorder"
)

// memLedgerRepo is an in-memory ledger.Repository backing engine tests.
type memLedgerRepo struct {
	entries []entity.Movement
	locked  []entity.PartitionKey

	// failOnReference aborts Insert for movements carrying the reference,
	// simulating a storage failure mid-consolidation.
	failOnReference string
}

func (r *memLedgerRepo) partition(key entity.PartitionKey) []entity.Movement {
	var out []entity.Movement
	for _, m := range r.entries {
		if m.Partition() == key {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(&out[j]) })
	return out
}

func (r *memLedgerRepo) Insert(_ context.Context, m *entity.Movement) error {
	if r.failOnReference != "" && m.Reference == r.failOnReference {
		return errors.New("storage failure injected")
	}
	r.entries = append(r.entries, *m)
	return nil
}

func (r *memLedgerRepo) UpdateBalances(_ context.Context, changes []ledger.BalanceChange) error {
	for _, c := range changes {
		for i := range r.entries {
			if r.entries[i].LineID == c.LineID {
				r.entries[i].RunningBalance = c.Balance
			}
		}
	}
	return nil
}

func (r *memLedgerRepo) NextSeq(_ context.Context, key entity.PartitionKey) (int64, error) {
	var max int64
	for _, m := range r.entries {
		if m.Partition() == key && m.Seq > max {
			max = m.Seq
		}
	}
	return max + 1, nil
}

func (r *memLedgerRepo) Predecessor(_ context.Context, key entity.PartitionKey, at time.Time, seq int64) (*entity.Movement, error) {
	probe := entity.Movement{OccurredAt: at, Seq: seq}
	var pred *entity.Movement
	for _, m := range r.partition(key) {
		m := m
		if m.Before(&probe) {
			pred = &m
		}
	}
	return pred, nil
}

func (r *memLedgerRepo) Following(_ context.Context, key entity.PartitionKey, at time.Time, seq int64) ([]entity.Movement, error) {
	probe := entity.Movement{OccurredAt: at, Seq: seq}
	var out []entity.Movement
	for _, m := range r.partition(key) {
		m := m
		if probe.Before(&m) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memLedgerRepo) Latest(_ context.Context, key entity.PartitionKey) (*entity.Movement, error) {
	part := r.partition(key)
	if len(part) == 0 {
		return nil, nil
	}
	last := part[len(part)-1]
	return &last, nil
}

func (r *memLedgerRepo) Partition(_ context.Context, key entity.PartitionKey) ([]entity.Movement, error) {
	return r.partition(key), nil
}

func (r *memLedgerRepo) Heads(_ context.Context, itemID *id.ID) ([]entity.PartitionHead, error) {
	seen := make(map[entity.PartitionKey]bool)
	var heads []entity.PartitionHead
	for _, m := range r.entries {
		if itemID != nil && m.ItemID != *itemID {
			continue
		}
		key := m.Partition()
		if seen[key] {
			continue
		}
		seen[key] = true
		part := r.partition(key)
		last := part[len(part)-1]
		heads = append(heads, entity.PartitionHead{
			ItemID:         last.ItemID,
			LocationID:     last.LocationID,
			Balance:        last.RunningBalance,
			LastMovementAt: last.OccurredAt,
			LastSeq:        last.Seq,
		})
	}
	return heads, nil
}

func (r *memLedgerRepo) History(_ context.Context, itemID id.ID, filter ledger.HistoryFilter) ([]entity.Movement, error) {
	var out []entity.Movement
	for _, m := range r.entries {
		if m.ItemID == itemID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *memLedgerRepo) PartitionKeys(_ context.Context, after *entity.PartitionKey, limit int) ([]entity.PartitionKey, error) {
	return nil, nil
}

func (r *memLedgerRepo) LockPartition(_ context.Context, key entity.PartitionKey) error {
	r.locked = append(r.locked, key)
	return nil
}

// memTx restores ledger state on error, mimicking a rollback.
type memTx struct {
	repo    *memLedgerRepo
	roCalls int
}

func (t *memTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := append([]entity.Movement(nil), t.repo.entries...)
	if err := fn(ctx); err != nil {
		t.repo.entries = snapshot
		return err
	}
	return nil
}

func (t *memTx) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	t.roCalls++
	return fn(ctx)
}

type memDir struct {
	locations map[id.ID]*location.Location
}

func newMemDir(locs ...*location.Location) *memDir {
	d := &memDir{locations: make(map[id.ID]*location.Location)}
	for _, l := range locs {
		d.locations[l.ID] = l
	}
	return d
}

func (d *memDir) GetByID(_ context.Context, locationID id.ID) (*location.Location, error) {
	if l, ok := d.locations[locationID]; ok {
		return l, nil
	}
	return nil, apperror.NewNotFound("location", locationID)
}

func (d *memDir) GetMany(_ context.Context, ids []id.ID) (map[id.ID]*location.Location, error) {
	out := make(map[id.ID]*location.Location)
	for _, locID := range ids {
		if l, ok := d.locations[locID]; ok {
			out[locID] = l
		}
	}
	return out, nil
}

// recordingRouter captures reroute calls.
type recordingRouter struct {
	calls []rerouteCall
	err   error
}

type rerouteCall struct {
	itemID id.ID
	from   id.ID
	to     id.ID
}

func (r *recordingRouter) Reroute(_ context.Context, itemID, fromLocation, toLocation id.ID) (workorder.RerouteResult, error) {
	if r.err != nil {
		return workorder.RerouteResult{}, r.err
	}
	r.calls = append(r.calls, rerouteCall{itemID: itemID, from: fromLocation, to: toLocation})
	return workorder.RerouteResult{Repointed: []id.ID{id.New()}}, nil
}

// recordingIssues captures integrity findings raised during appends.
type recordingIssues struct {
	recorded []ledger.Issue
}

func (r *recordingIssues) Record(_ context.Context, issue ledger.Issue) error {
	r.recorded = append(r.recorded, issue)
	return nil
}

// recordingEvents captures published events.
type recordingEvents struct {
	published []string
}

func (e *recordingEvents) Publish(_ context.Context, eventType string, _ id.ID, _ any) error {
	e.published = append(e.published, eventType)
	return nil
}

func qty(s string) types.Quantity { return types.MustQuantity(s) }

// seed appends an inbound movement with materialized balance directly.
func seed(repo *memLedgerRepo, itemID id.ID, loc *location.Location, q string, at time.Time) {
	key := entity.PartitionKey{ItemID: itemID, LocationID: loc.ID}
	part := repo.partition(key)
	var prev types.Quantity
	var seq int64
	if len(part) > 0 {
		prev = part[len(part)-1].RunningBalance
		seq = part[len(part)-1].Seq
	}
	m := entity.NewMovement(itemID, loc.ID, entity.DirectionIn, qty(q), at, "seed", "test")
	m.Seq = seq + 1
	m.RunningBalance = prev + m.Signed()
	repo.entries = append(repo.entries, m)
}

func totalFor(repo *memLedgerRepo, itemID id.ID) types.Quantity {
	heads, _ := repo.Heads(context.Background(), &itemID)
	var total types.Quantity
	for _, h := range heads {
		total += h.Balance
	}
	return total
}
