package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stokado/internal/core/apperror"
	"stokado/internal/core/entity"
	"stokado/internal/core/id"
	"stokado/internal/core/types"
	"stokado/internal/domain/catalogs/location"
)

func newTestService(locs ...*location.Location) (*Service, *memRepo, *memIssues) {
	repo := newMemRepo()
	issues := &memIssues{}
	svc := NewService(repo, newMemDir(locs...), &memTx{repo: repo}, Options{Issues: issues})
	return svc, repo, issues
}

func qty(s string) types.Quantity { return types.MustQuantity(s) }

func TestAppendComputesRunningBalance(t *testing.T) {
	loc := location.NewLocation("WH-A", "A")
	svc, _, _ := newTestService(loc)
	itemID := id.New()
	ctx := context.Background()

	m1, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionIn, Quantity: qty("10"),
	})
	require.NoError(t, err)
	assert.Equal(t, qty("10"), m1.RunningBalance)
	assert.Equal(t, int64(1), m1.Seq)

	m2, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionOut, Quantity: qty("4"),
	})
	require.NoError(t, err)
	assert.Equal(t, qty("6"), m2.RunningBalance)
	assert.Equal(t, int64(2), m2.Seq)

	balance, err := svc.CurrentBalance(ctx, itemID, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, qty("6"), balance)
}

func TestAppendRejectsWithdrawalFromEmptyPartition(t *testing.T) {
	loc := location.NewLocation("WH-A", "A")
	svc, repo, _ := newTestService(loc)

	_, err := svc.Append(context.Background(), AppendInput{
		ItemID: id.New(), LocationID: loc.ID,
		Direction: entity.DirectionOut, Quantity: qty("5"),
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientBalance))
	assert.Empty(t, repo.entries, "rejected movement must not be persisted")
}

func TestAppendRejectsWithdrawalFromZeroBalance(t *testing.T) {
	loc := location.NewLocation("WH-A", "A")
	svc, _, _ := newTestService(loc)
	itemID := id.New()
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionIn, Quantity: qty("5"),
	})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionOut, Quantity: qty("5"),
	})
	require.NoError(t, err)

	_, err = svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionOut, Quantity: qty("1"),
	})
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientBalance))
}

func TestAppendFlagsOverdraft(t *testing.T) {
	loc := location.NewLocation("WH-A", "A")
	svc, _, issues := newTestService(loc)
	itemID := id.New()
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionIn, Quantity: qty("10"),
	})
	require.NoError(t, err)

	m, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionOut, Quantity: qty("15"),
	})
	require.NoError(t, err, "overdraft from positive balance is recorded, not rejected")
	assert.True(t, m.Flags.Has(entity.FlagOverdraft))
	assert.Equal(t, qty("-5"), m.RunningBalance)
	assert.Contains(t, issues.kinds(), IssueOverdraft)
}

func TestAppendRejectsInactiveLocationInbound(t *testing.T) {
	loc := location.NewLocation("WH-A", "A")
	loc.Active = false
	svc, _, _ := newTestService(loc)

	_, err := svc.Append(context.Background(), AppendInput{
		ItemID: id.New(), LocationID: loc.ID,
		Direction: entity.DirectionIn, Quantity: qty("5"),
	})
	assert.True(t, apperror.IsCode(err, apperror.CodeInactiveLocation))
}

func TestAppendFlagsCrossLocationInbound(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	svc, _, issues := newTestService(locA, locB)
	itemID := id.New()
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: locA.ID,
		Direction: entity.DirectionIn, Quantity: qty("10"),
	})
	require.NoError(t, err)

	m, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: locB.ID,
		Direction: entity.DirectionIn, Quantity: qty("3"),
	})
	require.NoError(t, err)
	assert.True(t, m.Flags.Has(entity.FlagCrossLocationInbound))
	assert.Contains(t, issues.kinds(), IssueCrossLocationInbound)
}

func TestAppendConsolidationFillSkipsIssueQueue(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	svc, _, issues := newTestService(locA, locB)
	itemID := id.New()
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: locA.ID,
		Direction: entity.DirectionIn, Quantity: qty("10"),
	})
	require.NoError(t, err)

	m, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: locB.ID,
		Direction: entity.DirectionIn, Quantity: qty("3"),
		Consolidation: true,
	})
	require.NoError(t, err)
	assert.True(t, m.Flags.Has(entity.FlagCrossLocationInbound), "flag stays informational")
	assert.NotContains(t, issues.kinds(), IssueCrossLocationInbound)
}

func TestBackdatedAppendCascadesDownstream(t *testing.T) {
	loc := location.NewLocation("WH-A", "A")
	svc, repo, _ := newTestService(loc)
	itemID := id.New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionIn, Quantity: qty("10"), OccurredAt: base,
	})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionOut, Quantity: qty("4"), OccurredAt: base.Add(48 * time.Hour),
	})
	require.NoError(t, err)

	// Backdated between the two existing entries.
	m, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionIn, Quantity: qty("5"), OccurredAt: base.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, qty("15"), m.RunningBalance)

	part := repo.partition(entity.PartitionKey{ItemID: itemID, LocationID: loc.ID})
	require.Len(t, part, 3)
	assert.Equal(t, qty("10"), part[0].RunningBalance)
	assert.Equal(t, qty("15"), part[1].RunningBalance)
	assert.Equal(t, qty("11"), part[2].RunningBalance, "downstream entry must be recomputed")
}

func TestEqualTimestampsOrderByInsertion(t *testing.T) {
	loc := location.NewLocation("WH-A", "A")
	svc, repo, _ := newTestService(loc)
	itemID := id.New()
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, q := range []string{"10", "20", "30"} {
		_, err := svc.Append(ctx, AppendInput{
			ItemID: itemID, LocationID: loc.ID,
			Direction: entity.DirectionIn, Quantity: qty(q), OccurredAt: at,
		})
		require.NoError(t, err)
	}

	part := repo.partition(entity.PartitionKey{ItemID: itemID, LocationID: loc.ID})
	require.Len(t, part, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{part[0].Seq, part[1].Seq, part[2].Seq})
	assert.Equal(t, qty("60"), part[2].RunningBalance)
}

func TestTotalBalanceSkipsInactiveLocations(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	svc, _, _ := newTestService(locA, locB)
	itemID := id.New()
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: locA.ID,
		Direction: entity.DirectionIn, Quantity: qty("10"),
	})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: locB.ID,
		Direction: entity.DirectionIn, Quantity: qty("7"),
	})
	require.NoError(t, err)

	total, err := svc.TotalBalance(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, qty("17"), total)

	locB.Active = false
	total, err = svc.TotalBalance(ctx, itemID)
	require.NoError(t, err)
	assert.Equal(t, qty("10"), total)
}

func TestAuthoritativeLocationPrefersRecency(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	svc, _, _ := newTestService(locA, locB)
	itemID := id.New()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: locA.ID,
		Direction: entity.DirectionIn, Quantity: qty("100"), OccurredAt: base,
	})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: locB.ID,
		Direction: entity.DirectionIn, Quantity: qty("1"), OccurredAt: base.Add(time.Hour),
	})
	require.NoError(t, err)

	best, found, err := svc.AuthoritativeLocation(ctx, itemID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, locB.ID, best, "recency wins over balance size")
}

func TestAuthoritativeLocationNoneWhenAllInactive(t *testing.T) {
	loc := location.NewLocation("WH-A", "A")
	svc, _, _ := newTestService(loc)
	itemID := id.New()
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionIn, Quantity: qty("5"),
	})
	require.NoError(t, err)

	loc.Active = false
	_, found, err := svc.AuthoritativeLocation(ctx, itemID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBestLocationTieBreaksOnBalance(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	small, big := id.New(), id.New()
	heads := []entity.PartitionHead{
		{LocationID: small, Balance: qty("5"), LastMovementAt: at},
		{LocationID: big, Balance: qty("9"), LastMovementAt: at},
	}

	best, ok := BestLocation(heads, func(id.ID) bool { return true })
	require.True(t, ok)
	assert.Equal(t, big, best)
}

func TestRecalculateRepairsCorruptedBalances(t *testing.T) {
	loc := location.NewLocation("WH-A", "A")
	svc, repo, _ := newTestService(loc)
	itemID := id.New()
	ctx := context.Background()

	_, err := svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionIn, Quantity: qty("10"),
	})
	require.NoError(t, err)
	_, err = svc.Append(ctx, AppendInput{
		ItemID: itemID, LocationID: loc.ID,
		Direction: entity.DirectionOut, Quantity: qty("3"),
	})
	require.NoError(t, err)

	// Corrupt the materialized balances directly.
	for i := range repo.entries {
		repo.entries[i].RunningBalance = qty("999")
	}

	require.NoError(t, svc.Recalculate(ctx, itemID, loc.ID))

	part := repo.partition(entity.PartitionKey{ItemID: itemID, LocationID: loc.ID})
	assert.Equal(t, qty("10"), part[0].RunningBalance)
	assert.Equal(t, qty("7"), part[1].RunningBalance)
}

func TestRecalculateReportsOrphanWithdrawalPartition(t *testing.T) {
	loc := location.NewLocation("WH-A", "A")
	svc, repo, issues := newTestService(loc)
	itemID := id.New()
	ctx := context.Background()

	// Simulate an upstream bulk import that wrote a withdrawal first.
	m := entity.NewMovement(itemID, loc.ID, entity.DirectionOut, qty("4"), time.Now().UTC(), "import", "bulk")
	m.Seq = 1
	m.RunningBalance = qty("-4")
	repo.entries = append(repo.entries, m)

	require.NoError(t, svc.Recalculate(ctx, itemID, loc.ID))
	assert.Contains(t, issues.kinds(), IssueOrphanWithdrawal)

	// Balances are made internally consistent but the entry is kept.
	part := repo.partition(entity.PartitionKey{ItemID: itemID, LocationID: loc.ID})
	require.Len(t, part, 1)
	assert.Equal(t, qty("-4"), part[0].RunningBalance)
}

func TestRepairAllWalksEveryPartition(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	svc, repo, _ := newTestService(locA, locB)
	ctx := context.Background()

	for _, locID := range []id.ID{locA.ID, locB.ID} {
		_, err := svc.Append(ctx, AppendInput{
			ItemID: id.New(), LocationID: locID,
			Direction: entity.DirectionIn, Quantity: qty("10"),
		})
		require.NoError(t, err)
	}
	for i := range repo.entries {
		repo.entries[i].RunningBalance = qty("0")
	}

	require.NoError(t, svc.RepairAll(ctx, 1, 2))
	for _, m := range repo.entries {
		assert.Equal(t, qty("10"), m.RunningBalance)
	}
}
