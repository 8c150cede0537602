package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stokado/internal/core/entity"
	"stokado/internal/core/id"
)

func makeEntry(direction entity.Direction, q string, day int, seq int64) entity.Movement {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	m := entity.NewMovement(id.New(), id.New(), direction, qty(q), base.Add(time.Duration(day)*24*time.Hour), "", "test")
	m.Seq = seq
	return m
}

func TestRecomputeWalksWholePartition(t *testing.T) {
	entries := []entity.Movement{
		makeEntry(entity.DirectionIn, "10", 0, 1),
		makeEntry(entity.DirectionOut, "3", 1, 1),
		makeEntry(entity.DirectionIn, "5", 2, 1),
	}

	changed := Recompute(entries)

	assert.Equal(t, []int{0, 1, 2}, changed)
	assert.Equal(t, qty("10"), entries[0].RunningBalance)
	assert.Equal(t, qty("7"), entries[1].RunningBalance)
	assert.Equal(t, qty("12"), entries[2].RunningBalance)
}

func TestRecomputeReportsOnlyChangedEntries(t *testing.T) {
	entries := []entity.Movement{
		makeEntry(entity.DirectionIn, "10", 0, 1),
		makeEntry(entity.DirectionOut, "3", 1, 1),
	}
	entries[0].RunningBalance = qty("10")
	entries[1].RunningBalance = qty("999")

	changed := Recompute(entries)

	assert.Equal(t, []int{1}, changed)
	assert.Equal(t, qty("7"), entries[1].RunningBalance)
}

func TestRecomputeEmptyPartition(t *testing.T) {
	assert.Empty(t, Recompute(nil))
}

func TestSortPartitionOrdersByTimestampThenSeq(t *testing.T) {
	a := makeEntry(entity.DirectionIn, "1", 1, 2)
	b := makeEntry(entity.DirectionIn, "1", 1, 1)
	c := makeEntry(entity.DirectionIn, "1", 0, 5)
	entries := []entity.Movement{a, b, c}

	SortPartition(entries)

	require.Len(t, entries, 3)
	assert.Equal(t, c.LineID, entries[0].LineID)
	assert.Equal(t, b.LineID, entries[1].LineID)
	assert.Equal(t, a.LineID, entries[2].LineID)
}

func TestFirstIsOutbound(t *testing.T) {
	assert.False(t, FirstIsOutbound(nil))
	assert.False(t, FirstIsOutbound([]entity.Movement{makeEntry(entity.DirectionIn, "1", 0, 1)}))
	assert.True(t, FirstIsOutbound([]entity.Movement{
		makeEntry(entity.DirectionOut, "1", 0, 1),
		makeEntry(entity.DirectionIn, "2", 1, 1),
	}))
}
