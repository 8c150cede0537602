package workorder

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stokado/internal/core/apperror"
	"stokado/internal/core/id"
	"stokado/internal/core/types"
)

// memOrderRepo is an in-memory Repository.
type memOrderRepo struct {
	orders map[id.ID]*WorkOrder
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[id.ID]*WorkOrder)}
}

func (r *memOrderRepo) Create(_ context.Context, order *WorkOrder) error {
	clone := *order
	clone.Lines = append([]Line(nil), order.Lines...)
	r.orders[order.ID] = &clone
	return nil
}

func (r *memOrderRepo) GetByID(_ context.Context, orderID id.ID) (*WorkOrder, error) {
	if o, ok := r.orders[orderID]; ok {
		return o, nil
	}
	return nil, apperror.NewNotFound("work_order", orderID)
}

func (r *memOrderRepo) ListOpenByItemAndLocation(_ context.Context, itemID, locationID id.ID) ([]*WorkOrder, error) {
	var out []*WorkOrder
	for _, o := range r.orders {
		if o.Status != StatusOpen || o.LocationID != locationID {
			continue
		}
		if len(o.LinesFor(itemID)) > 0 {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memOrderRepo) ListOpen(_ context.Context, needsFixOnly bool, limit int) ([]*WorkOrder, error) {
	var out []*WorkOrder
	for _, o := range r.orders {
		if o.Status != StatusOpen {
			continue
		}
		if needsFixOnly && !o.NeedsLocationFix {
			continue
		}
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memOrderRepo) UpdateLocation(_ context.Context, orderID, locationID id.ID) error {
	o, ok := r.orders[orderID]
	if !ok {
		return apperror.NewNotFound("work_order", orderID)
	}
	o.LocationID = locationID
	o.NeedsLocationFix = false
	return nil
}

func (r *memOrderRepo) SetNeedsFix(_ context.Context, orderID id.ID, needsFix bool) error {
	o, ok := r.orders[orderID]
	if !ok {
		return apperror.NewNotFound("work_order", orderID)
	}
	o.NeedsLocationFix = needsFix
	return nil
}

func (r *memOrderRepo) DeleteLines(_ context.Context, orderID id.ID, lineIDs []id.ID) error {
	o, ok := r.orders[orderID]
	if !ok {
		return apperror.NewNotFound("work_order", orderID)
	}
	drop := make(map[id.ID]struct{}, len(lineIDs))
	for _, lid := range lineIDs {
		drop[lid] = struct{}{}
	}
	var kept []Line
	for _, l := range o.Lines {
		if _, gone := drop[l.ID]; !gone {
			kept = append(kept, l)
		}
	}
	o.Lines = kept
	return nil
}

func (r *memOrderRepo) Delete(_ context.Context, orderID id.ID) error {
	delete(r.orders, orderID)
	return nil
}

// stubStock answers balance and authority questions from fixed maps.
type stubStock struct {
	balances  map[id.ID]map[id.ID]types.Quantity // item -> location -> balance
	authority map[id.ID]id.ID                    // item -> location
}

func (s *stubStock) CurrentBalance(_ context.Context, itemID, locationID id.ID) (types.Quantity, error) {
	return s.balances[itemID][locationID], nil
}

func (s *stubStock) AuthoritativeLocation(_ context.Context, itemID id.ID) (id.ID, bool, error) {
	loc, ok := s.authority[itemID]
	return loc, ok, nil
}

type passTx struct{}

func (passTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func q(s string) types.Quantity { return types.MustQuantity(s) }

func TestRerouteRepointsSingleItemOrder(t *testing.T) {
	repo := newMemOrderRepo()
	itemX, locA, locC := id.New(), id.New(), id.New()
	stock := &stubStock{authority: map[id.ID]id.ID{itemX: locC}}
	router := NewRouter(repo, stock, passTx{})

	order := NewWorkOrder("WO-1", locA)
	order.AddLine(itemX, q("5"))
	require.NoError(t, repo.Create(context.Background(), order))

	result, err := router.Reroute(context.Background(), itemX, locA, locC)
	require.NoError(t, err)

	assert.Equal(t, []id.ID{order.ID}, result.Repointed)
	assert.Empty(t, result.Split)

	moved, err := repo.GetByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, locC, moved.LocationID)
	assert.False(t, moved.NeedsLocationFix)
}

func TestRerouteRepointsWhenOtherItemsAlreadyAtTarget(t *testing.T) {
	repo := newMemOrderRepo()
	itemX, itemY, locA, locC := id.New(), id.New(), id.New(), id.New()
	stock := &stubStock{authority: map[id.ID]id.ID{itemX: locC, itemY: locC}}
	router := NewRouter(repo, stock, passTx{})

	order := NewWorkOrder("WO-1", locA)
	order.AddLine(itemX, q("5"))
	order.AddLine(itemY, q("2"))
	require.NoError(t, repo.Create(context.Background(), order))

	result, err := router.Reroute(context.Background(), itemX, locA, locC)
	require.NoError(t, err)
	assert.Len(t, result.Repointed, 1)
	assert.Empty(t, result.Split)
}

func TestRerouteSplitsMixedOrder(t *testing.T) {
	repo := newMemOrderRepo()
	itemX, itemY, locA, locC := id.New(), id.New(), id.New(), id.New()
	// Item Y's stock stays at A, so the order cannot move whole.
	stock := &stubStock{authority: map[id.ID]id.ID{itemX: locC, itemY: locA}}
	router := NewRouter(repo, stock, passTx{})

	order := NewWorkOrder("WO-1", locA)
	order.Assignee = "taylor"
	order.Priority = 3
	order.AddLine(itemX, q("5"))
	order.AddLine(itemY, q("2"))
	require.NoError(t, repo.Create(context.Background(), order))

	result, err := router.Reroute(context.Background(), itemX, locA, locC)
	require.NoError(t, err)
	assert.Empty(t, result.Repointed)
	require.Len(t, result.Split, 1)

	original, err := repo.GetByID(context.Background(), result.Split[0].OriginalID)
	require.NoError(t, err)
	require.Len(t, original.Lines, 1, "only item Y stays")
	assert.Equal(t, itemY, original.Lines[0].ItemID)
	assert.Equal(t, locA, original.LocationID)

	split, err := repo.GetByID(context.Background(), result.Split[0].NewID)
	require.NoError(t, err)
	require.Len(t, split.Lines, 1, "only item X moves")
	assert.Equal(t, itemX, split.Lines[0].ItemID)
	assert.Equal(t, q("5"), split.Lines[0].Quantity)
	assert.Equal(t, locC, split.LocationID)
	assert.Equal(t, "taylor", split.Assignee)
	assert.Equal(t, 3, split.Priority)
	assert.True(t, strings.HasPrefix(split.Number, "WO-1-R"))
}

func TestSplitKeepsOriginalWhenRepoReturnsLiveOrders(t *testing.T) {
	// The fake hands out stored pointers, so DeleteLines shrinks the
	// order the router is holding. The original must survive with every
	// unmoved line intact even under that aliasing.
	repo := newMemOrderRepo()
	itemX, itemY, itemZ, locA, locC := id.New(), id.New(), id.New(), id.New(), id.New()
	stock := &stubStock{authority: map[id.ID]id.ID{itemX: locC, itemY: locA, itemZ: locA}}
	router := NewRouter(repo, stock, passTx{})

	order := NewWorkOrder("WO-7", locA)
	order.AddLine(itemX, q("3"))
	order.AddLine(itemX, q("1"))
	order.AddLine(itemY, q("2"))
	order.AddLine(itemZ, q("4"))
	require.NoError(t, repo.Create(context.Background(), order))

	result, err := router.Reroute(context.Background(), itemX, locA, locC)
	require.NoError(t, err)
	require.Len(t, result.Split, 1)

	original, err := repo.GetByID(context.Background(), result.Split[0].OriginalID)
	require.NoError(t, err)
	require.Len(t, original.Lines, 2)
	assert.Empty(t, original.LinesFor(itemX))
	require.Len(t, original.LinesFor(itemY), 1)
	require.Len(t, original.LinesFor(itemZ), 1)

	split, err := repo.GetByID(context.Background(), result.Split[0].NewID)
	require.NoError(t, err)
	require.Len(t, split.Lines, 2, "both moved lines, none duplicated")
}

func TestSweepFlagsAndRepairsStaleOrders(t *testing.T) {
	repo := newMemOrderRepo()
	itemX, locA, locC := id.New(), id.New(), id.New()
	stock := &stubStock{
		balances:  map[id.ID]map[id.ID]types.Quantity{itemX: {locA: q("0"), locC: q("12")}},
		authority: map[id.ID]id.ID{itemX: locC},
	}
	router := NewRouter(repo, stock, passTx{})

	stale := NewWorkOrder("WO-1", locA)
	stale.AddLine(itemX, q("5"))
	require.NoError(t, repo.Create(context.Background(), stale))

	result, err := router.Sweep(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, 1, result.Flagged)
	assert.Equal(t, 1, result.Repointed)

	fixed, err := repo.GetByID(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, locC, fixed.LocationID)
	assert.False(t, fixed.NeedsLocationFix)
}

func TestSweepLeavesConsistentOrdersAlone(t *testing.T) {
	repo := newMemOrderRepo()
	itemX, locA := id.New(), id.New()
	stock := &stubStock{
		balances:  map[id.ID]map[id.ID]types.Quantity{itemX: {locA: q("5")}},
		authority: map[id.ID]id.ID{itemX: locA},
	}
	router := NewRouter(repo, stock, passTx{})

	order := NewWorkOrder("WO-1", locA)
	order.AddLine(itemX, q("5"))
	require.NoError(t, repo.Create(context.Background(), order))

	result, err := router.Sweep(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Zero(t, result.Flagged)
	assert.Zero(t, result.Repointed)
}

func TestMarkStaleFlagsAffectedOrders(t *testing.T) {
	repo := newMemOrderRepo()
	itemX, itemY, locA := id.New(), id.New(), id.New()
	router := NewRouter(repo, &stubStock{}, passTx{})

	affected := NewWorkOrder("WO-1", locA)
	affected.AddLine(itemX, q("5"))
	require.NoError(t, repo.Create(context.Background(), affected))

	unrelated := NewWorkOrder("WO-2", locA)
	unrelated.AddLine(itemY, q("1"))
	require.NoError(t, repo.Create(context.Background(), unrelated))

	n, err := router.MarkStale(context.Background(), itemX, locA)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	flagged, _ := repo.GetByID(context.Background(), affected.ID)
	assert.True(t, flagged.NeedsLocationFix)
	untouched, _ := repo.GetByID(context.Background(), unrelated.ID)
	assert.False(t, untouched.NeedsLocationFix)
}
