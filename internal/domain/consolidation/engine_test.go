package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stokado/internal/core/apperror"
	"stokado/internal/core/entity"
	"stokado/internal/core/id"
	"stokado/internal/domain/catalogs/location"
	"stokado/internal/domain/ledger"
)

type engineFixture struct {
	engine *Engine
	repo   *memLedgerRepo
	router *recordingRouter
	events *recordingEvents
	issues *recordingIssues
}

func newEngineFixture(locs ...*location.Location) *engineFixture {
	repo := &memLedgerRepo{}
	dir := newMemDir(locs...)
	txm := &memTx{repo: repo}
	issues := &recordingIssues{}
	ledgerSvc := ledger.NewService(repo, dir, txm, ledger.Options{Issues: issues})
	router := &recordingRouter{}
	events := &recordingEvents{}
	return &engineFixture{
		engine: NewEngine(ledgerSvc, dir, router, txm, events),
		repo:   repo,
		router: router,
		events: events,
		issues: issues,
	}
}

func TestConsolidateMergesScatteredBalances(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	f := newEngineFixture(locA, locB)
	itemID := id.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed(f.repo, itemID, locA, "20", base)
	seed(f.repo, itemID, locB, "8", base.Add(time.Hour))

	before := totalFor(f.repo, itemID)
	result, err := f.engine.Consolidate(context.Background(), itemID, locA.ID)
	require.NoError(t, err)

	assert.Equal(t, []id.ID{locB.ID}, result.Drained)
	assert.Equal(t, qty("8"), result.TotalMoved)
	assert.Equal(t, before, totalFor(f.repo, itemID), "quantity must be conserved")

	headA, err := f.repo.Latest(context.Background(), entity.PartitionKey{ItemID: itemID, LocationID: locA.ID})
	require.NoError(t, err)
	assert.Equal(t, qty("28"), headA.RunningBalance)

	headB, err := f.repo.Latest(context.Background(), entity.PartitionKey{ItemID: itemID, LocationID: locB.ID})
	require.NoError(t, err)
	assert.Equal(t, qty("0"), headB.RunningBalance)
	assert.Equal(t, RefDrain, headB.Reference)

	require.Len(t, f.router.calls, 1)
	assert.Equal(t, rerouteCall{itemID: itemID, from: locB.ID, to: locA.ID}, f.router.calls[0])
	assert.Equal(t, []string{EventConsolidationCompleted}, f.events.published)
}

func TestConsolidateOpensNoIssuesForOwnFills(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	locC := location.NewLocation("WH-C", "C")
	f := newEngineFixture(locA, locB, locC)
	itemID := id.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed(f.repo, itemID, locA, "20", base)
	seed(f.repo, itemID, locB, "8", base.Add(time.Hour))
	seed(f.repo, itemID, locC, "4", base.Add(2*time.Hour))

	// Filling the target while a later source still holds stock must not
	// land cross-location findings in the operator queue.
	result, err := f.engine.Consolidate(context.Background(), itemID, locA.ID)
	require.NoError(t, err)
	require.Len(t, result.Drained, 2)

	assert.Empty(t, f.issues.recorded)

	partA, err := f.repo.Partition(context.Background(), entity.PartitionKey{ItemID: itemID, LocationID: locA.ID})
	require.NoError(t, err)
	require.Len(t, partA, 3)
	assert.Equal(t, qty("32"), partA[2].RunningBalance)
	// The first fill lands while the second source still holds stock, so
	// it keeps the informational flag.
	assert.True(t, partA[1].Flags.Has(entity.FlagCrossLocationInbound))
}

func TestConsolidateDrainsInactiveSources(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	locB.Active = false
	f := newEngineFixture(locA, locB)
	itemID := id.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed(f.repo, itemID, locA, "5", base)
	seed(f.repo, itemID, locB, "3", base)

	result, err := f.engine.Consolidate(context.Background(), itemID, locA.ID)
	require.NoError(t, err)
	assert.Equal(t, []id.ID{locB.ID}, result.Drained)

	headA, _ := f.repo.Latest(context.Background(), entity.PartitionKey{ItemID: itemID, LocationID: locA.ID})
	assert.Equal(t, qty("8"), headA.RunningBalance)
}

func TestConsolidateIsIdempotent(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	f := newEngineFixture(locA, locB)
	itemID := id.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed(f.repo, itemID, locA, "20", base)
	seed(f.repo, itemID, locB, "8", base)

	first, err := f.engine.Consolidate(context.Background(), itemID, locA.ID)
	require.NoError(t, err)
	require.NotEmpty(t, first.Drained)
	entriesAfterFirst := len(f.repo.entries)

	second, err := f.engine.Consolidate(context.Background(), itemID, locA.ID)
	require.NoError(t, err)
	assert.Empty(t, second.Drained)
	assert.True(t, second.TotalMoved.IsZero())
	assert.Len(t, f.repo.entries, entriesAfterFirst, "no-op run must not write")
}

func TestConsolidateRejectsInactiveTarget(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locA.Active = false
	f := newEngineFixture(locA)

	_, err := f.engine.Consolidate(context.Background(), id.New(), locA.ID)
	assert.True(t, apperror.IsCode(err, apperror.CodeInactiveLocation))
}

func TestConsolidateAbortsAtomically(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	locC := location.NewLocation("WH-C", "C")
	f := newEngineFixture(locA, locB, locC)
	itemID := id.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed(f.repo, itemID, locB, "8", base)
	seed(f.repo, itemID, locC, "4", base)

	// Fail the fill write: the drain of B succeeds in-tx, then the fill
	// errors and the whole run must roll back.
	f.repo.failOnReference = RefFill
	entriesBefore := len(f.repo.entries)

	_, err := f.engine.Consolidate(context.Background(), itemID, locA.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConsolidationAborted))
	assert.Len(t, f.repo.entries, entriesBefore, "no partial drain may stay visible")
	assert.Empty(t, f.events.published)
}

func TestConsolidateAbortsWhenRouterFails(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	f := newEngineFixture(locA, locB)
	itemID := id.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed(f.repo, itemID, locB, "8", base)
	f.router.err = assert.AnError
	entriesBefore := len(f.repo.entries)

	_, err := f.engine.Consolidate(context.Background(), itemID, locA.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConsolidationAborted))
	assert.Len(t, f.repo.entries, entriesBefore)
}

func TestConsolidateLocksInLocationCodeOrder(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	locC := location.NewLocation("WH-C", "C")
	f := newEngineFixture(locA, locB, locC)
	itemID := id.New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	seed(f.repo, itemID, locB, "1", base)
	seed(f.repo, itemID, locC, "1", base)

	_, err := f.engine.Consolidate(context.Background(), itemID, locA.ID)
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(f.repo.locked), 3)
	first3 := f.repo.locked[:3]
	assert.Equal(t, locA.ID, first3[0].LocationID)
	assert.Equal(t, locB.ID, first3[1].LocationID)
	assert.Equal(t, locC.ID, first3[2].LocationID)
}
