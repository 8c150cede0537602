package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stokado/internal/core/id"
	"stokado/internal/domain/catalogs/location"
)

func TestScannerFindsScatteredItems(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	repo := &memLedgerRepo{}
	txm := &memTx{repo: repo}
	scanner := NewScanner(repo, newMemDir(locA, locB), txm)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	scattered := id.New()
	single := id.New()
	seed(repo, scattered, locA, "20", base)
	seed(repo, scattered, locB, "8", base.Add(time.Hour))
	seed(repo, single, locA, "5", base)

	candidates, err := scanner.FindMultiLocationItems(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1, "single-location items are not candidates")
	assert.Equal(t, 1, txm.roCalls, "scan reads from one snapshot")

	c := candidates[0]
	assert.Equal(t, scattered, c.ItemID)
	require.Len(t, c.Locations, 2)
	assert.Equal(t, "WH-A", c.Locations[0].Code)
	assert.Equal(t, "WH-B", c.Locations[1].Code)
	assert.Equal(t, locB.ID, c.SuggestedLocation, "latest movement wins")
}

func TestScannerSuggestionTieBreaksOnBalance(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	repo := &memLedgerRepo{}
	scanner := NewScanner(repo, newMemDir(locA, locB), &memTx{repo: repo})
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	itemID := id.New()
	seed(repo, itemID, locA, "20", at)
	seed(repo, itemID, locB, "8", at)

	candidates, err := scanner.FindMultiLocationItems(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, locA.ID, candidates[0].SuggestedLocation, "same timestamp, higher balance wins")
}

func TestScannerIgnoresInactiveAndDrainedLocations(t *testing.T) {
	locA := location.NewLocation("WH-A", "A")
	locB := location.NewLocation("WH-B", "B")
	locB.Active = false
	repo := &memLedgerRepo{}
	scanner := NewScanner(repo, newMemDir(locA, locB), &memTx{repo: repo})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	itemID := id.New()
	seed(repo, itemID, locA, "20", base)
	seed(repo, itemID, locB, "8", base)

	candidates, err := scanner.FindMultiLocationItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates, "stock at an inactive location does not make a review candidate")
}

func TestScannerEmptyLedger(t *testing.T) {
	repo := &memLedgerRepo{}
	scanner := NewScanner(repo, newMemDir(), &memTx{repo: repo})

	candidates, err := scanner.FindMultiLocationItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}
