package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_AllocateSplitsAndReleases(t *testing.T) {
	p := NewProfile(4)

	ranges := p.CheckAvailability(10, 20, 2)
	require.NotNil(t, ranges)
	assert.True(t, ranges.Equal(NewRangeList(0, 1)), "lowest PE indices first, got %v", ranges)

	h := p.Allocate(10, 30, ranges)
	require.NoError(t, p.check())

	assert.Equal(t, 4, p.FreeCountAt(5))
	assert.Equal(t, 2, p.FreeCountAt(10))
	assert.Equal(t, 2, p.FreeCountAt(29))
	assert.Equal(t, 4, p.FreeCountAt(30))

	p.Rollback(h)
	require.NoError(t, p.check())
	assert.Equal(t, 4, p.FreeCountAt(15))
}

func TestProfile_CheckAvailabilityAcrossEntries(t *testing.T) {
	p := NewProfile(4)
	p.Allocate(10, 20, NewRangeList(0, 2))

	// only PE 3 is free throughout [5, 25)
	got := p.CheckAvailability(5, 20, 1)
	require.NotNil(t, got)
	assert.True(t, got.Equal(NewRangeList(3, 3)), "got %v", got)

	assert.Nil(t, p.CheckAvailability(5, 20, 2), "two PEs are not continuously free")
}

func TestProfile_FindStartTime(t *testing.T) {
	p := NewProfile(4)
	p.Allocate(0, 100, NewRangeList(0, 3))
	p.Allocate(100, 200, NewRangeList(0, 1))

	// 2 PEs for 50s: PEs 2-3 free from t=100
	start, ranges, ok := p.FindStartTime(50, 2, 0)
	require.True(t, ok)
	assert.Equal(t, 100.0, start)
	assert.True(t, ranges.Equal(NewRangeList(2, 3)), "got %v", ranges)

	// 3 PEs must wait for t=200
	start, ranges, ok = p.FindStartTime(50, 3, 0)
	require.True(t, ok)
	assert.Equal(t, 200.0, start)
	assert.True(t, ranges.Equal(NewRangeList(0, 2)))

	// notEarlierThan inside a flat stretch starts exactly there
	start, _, ok = p.FindStartTime(10, 2, 150)
	require.True(t, ok)
	assert.Equal(t, 150.0, start)

	// demand beyond the universe can never be met
	_, _, ok = p.FindStartTime(1, 5, 0)
	assert.False(t, ok)
}

func TestProfile_CoalesceOnRelease(t *testing.T) {
	p := NewProfile(8)
	p.Allocate(10, 20, NewRangeList(0, 3))
	p.Release(10, 20, NewRangeList(0, 3))
	require.NoError(t, p.check())
	// fully released profile must collapse back to a single-shape timeline
	assert.Equal(t, 8, p.FreeCountAt(0))
	assert.Equal(t, 8, p.FreeCountAt(15))
	assert.Equal(t, 1, len(p.entries), "equal adjacent entries must coalesce")
}

func TestProfile_AdvanceTo(t *testing.T) {
	p := NewProfile(4)
	p.Allocate(10, 20, NewRangeList(0, 0))
	p.AdvanceTo(15)
	require.NoError(t, p.check())
	assert.Equal(t, 3, p.FreeCountAt(15))
	assert.Equal(t, 4, p.FreeCountAt(20))

	got := p.CheckImmediate(2, 3)
	require.NotNil(t, got)
	assert.True(t, got.Equal(NewRangeList(1, 3)), "got %v", got)
}

func TestProfile_TimeSlots(t *testing.T) {
	p := NewProfile(4)
	p.Allocate(10, 20, NewRangeList(0, 1))

	slots := p.TimeSlots(0, 30)
	require.Len(t, slots, 3)
	assert.Equal(t, 0.0, slots[0].Start)
	assert.Equal(t, 10.0, slots[0].End)
	assert.Equal(t, 4, slots[0].Ranges.Count())
	assert.Equal(t, 2, slots[1].Ranges.Count())
	assert.Equal(t, 20.0, slots[2].Start)
	assert.Equal(t, 30.0, slots[2].End)
}

func TestProfile_InvariantAfterManyMutations(t *testing.T) {
	p := NewProfile(16)
	h1 := p.Allocate(5, 50, NewRangeList(0, 7))
	p.Allocate(10, 40, NewRangeList(8, 11))
	p.Allocate(20, 30, NewRangeList(12, 15))
	require.NoError(t, p.check())

	assert.Equal(t, 0, p.FreeCountAt(25))
	p.Rollback(h1)
	require.NoError(t, p.check())
	assert.Equal(t, 8, p.FreeCountAt(25))
}
