package ledger

import (
	"context"
	"sort"
	"time"

	"stokado/internal/core/apperror"
	"stokado/internal/core/entity"
	"stokado/internal/core/id"
	"stokado/internal/domain/catalogs/location"
)

// memRepo is an in-memory Repository keeping entries in partition order.
type memRepo struct {
	entries []entity.Movement
	locked  []entity.PartitionKey
}

func newMemRepo() *memRepo { return &memRepo{} }

func (r *memRepo) partition(key entity.PartitionKey) []entity.Movement {
	var out []entity.Movement
	for _, m := range r.entries {
		if m.Partition() == key {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(&out[j]) })
	return out
}

func (r *memRepo) Insert(_ context.Context, m *entity.Movement) error {
	r.entries = append(r.entries, *m)
	return nil
}

func (r *memRepo) UpdateBalances(_ context.Context, changes []BalanceChange) error {
	for _, c := range changes {
		for i := range r.entries {
			if r.entries[i].LineID == c.LineID {
				r.entries[i].RunningBalance = c.Balance
			}
		}
	}
	return nil
}

func (r *memRepo) NextSeq(_ context.Context, key entity.PartitionKey) (int64, error) {
	var max int64
	for _, m := range r.entries {
		if m.Partition() == key && m.Seq > max {
			max = m.Seq
		}
	}
	return max + 1, nil
}

func (r *memRepo) Predecessor(_ context.Context, key entity.PartitionKey, at time.Time, seq int64) (*entity.Movement, error) {
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

func (r *memRepo) Following(_ context.Context, key entity.PartitionKey, at time.Time, seq int64) ([]entity.Movement, error) {
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

func (r *memRepo) Latest(_ context.Context, key entity.PartitionKey) (*entity.Movement, error) {
	part := r.partition(key)
	if len(part) == 0 {
		return nil, nil
	}
	last := part[len(part)-1]
	return &last, nil
}

func (r *memRepo) Partition(_ context.Context, key entity.PartitionKey) ([]entity.Movement, error) {
	return r.partition(key), nil
}

func (r *memRepo) Heads(_ context.Context, itemID *id.ID) ([]entity.PartitionHead, error) {
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

func (r *memRepo) History(_ context.Context, itemID id.ID, filter HistoryFilter) ([]entity.Movement, error) {
	var out []entity.Movement
	for _, m := range r.entries {
		if m.ItemID != itemID {
			continue
		}
		if filter.LocationID != nil && m.LocationID != *filter.LocationID {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[j].Before(&out[i]) })
	return out, nil
}

func (r *memRepo) PartitionKeys(_ context.Context, after *entity.PartitionKey, limit int) ([]entity.PartitionKey, error) {
	seen := make(map[entity.PartitionKey]bool)
	var keys []entity.PartitionKey
	for _, m := range r.entries {
		key := m.Partition()
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	start := 0
	if after != nil {
		for i, k := range keys {
			if k == *after {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	if end > len(keys) {
		end = len(keys)
	}
	return keys[start:end], nil
}

func (r *memRepo) LockPartition(_ context.Context, key entity.PartitionKey) error {
	r.locked = append(r.locked, key)
	return nil
}

// memTx runs the function directly and restores repository state on error,
// mimicking a rollback.
type memTx struct {
	repo *memRepo
}

func (t *memTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snapshot := append([]entity.Movement(nil), t.repo.entries...)
	if err := fn(ctx); err != nil {
		t.repo.entries = snapshot
		return err
	}
	return nil
}

// memDir is an in-memory LocationDirectory.
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

// memIssues collects integrity findings.
type memIssues struct {
	recorded []Issue
}

func (s *memIssues) Record(_ context.Context, issue Issue) error {
	s.recorded = append(s.recorded, issue)
	return nil
}

func (s *memIssues) kinds() []IssueKind {
	var out []IssueKind
	for _, i := range s.recorded {
		out = append(out, i.Kind)
	}
	return out
}
