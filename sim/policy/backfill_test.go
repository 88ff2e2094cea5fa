package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridlab/gridsim/sim"
)

func TestAggressive_BackfillWaitsForPivot(t *testing.T) {
	// pivot: a 4-PE job [0,10). Two 1-PE jobs arriving at t=1 find no free
	// PE and must not start before t=10.
	h := &testHost{}
	p := NewAggressive()
	p.Attach(h, char4x100())

	p.Submit(readyGridlet(1, 1000, 4, 0), false)
	h.runUntil(p, 1)
	g2 := readyGridlet(2, 500, 1, 1)
	g3 := readyGridlet(3, 500, 1, 1)
	p.Submit(g2, false)
	p.Submit(g3, false)
	h.drain(p)

	require.Len(t, h.returned, 3)
	assert.Equal(t, 10.0, g2.FinishTime-g2.ActualCPUTime, "must not start before the running job releases its PEs")
	assert.Equal(t, 10.0, g3.FinishTime-g3.ActualCPUTime)
	assert.Equal(t, 15.0, g2.FinishTime)
	assert.Equal(t, 15.0, g3.FinishTime)
}

func TestAggressive_LateArrivalRunsImmediately(t *testing.T) {
	// same pivot; a 1-PE job arriving at t=10 backfills onto the first free
	// PE and finishes at 15
	h := &testHost{}
	p := NewAggressive()
	p.Attach(h, char4x100())

	p.Submit(readyGridlet(1, 1000, 4, 0), false)
	h.runUntil(p, 10)
	g2 := readyGridlet(2, 500, 1, 10)
	p.Submit(g2, false)
	h.drain(p)

	assert.Equal(t, 15.0, g2.FinishTime)
	assert.Equal(t, 10.0, g2.FinishTime-g2.ActualCPUTime)
}

func TestAggressive_BackfillFillsGapWithoutDelayingPivot(t *testing.T) {
	// 2-PE job runs [0,20). Head-of-queue needs 4 PEs -> pivot start 20.
	// A short 2-PE job fits [0,20) on the idle PEs and is admitted out of
	// order; the pivot still starts at 20.
	h := &testHost{}
	p := NewAggressive()
	p.Attach(h, char4x100())

	p.Submit(readyGridlet(1, 2000, 2, 0), false)
	pivot := readyGridlet(2, 1000, 4, 0)
	p.Submit(pivot, false)
	filler := readyGridlet(3, 1000, 2, 0)
	p.Submit(filler, false)
	h.drain(p)

	require.Len(t, h.returned, 3)
	assert.Equal(t, 0.0, filler.FinishTime-filler.ActualCPUTime, "filler backfills immediately")
	assert.Equal(t, 10.0, filler.FinishTime)
	assert.Equal(t, 20.0, pivot.FinishTime-pivot.ActualCPUTime, "pivot start is not delayed by backfill")
	assert.Equal(t, 30.0, pivot.FinishTime)
}

func TestAggressive_TooLongFillerIsHeld(t *testing.T) {
	// same shape, but the filler would overrun into the pivot's window and
	// must wait behind it
	h := &testHost{}
	p := NewAggressive()
	p.Attach(h, char4x100())

	p.Submit(readyGridlet(1, 2000, 2, 0), false)
	pivot := readyGridlet(2, 1000, 4, 0)
	p.Submit(pivot, false)
	long := readyGridlet(3, 3000, 2, 0) // 30s > the 20s gap
	p.Submit(long, false)
	h.drain(p)

	assert.Equal(t, 20.0, pivot.FinishTime-pivot.ActualCPUTime)
	assert.GreaterOrEqual(t, long.FinishTime-long.ActualCPUTime, 30.0, "long filler must not start inside the gap")
}

func TestConservative_ScheduleIsStableUnderCancel(t *testing.T) {
	// five 2-PE jobs of runtime 100 on 4 PEs: (j1,j2)@[0,100),
	// (j3,j4)@[100,200), j5@[200,300). Canceling j3 at t=50 moves nothing.
	h := &testHost{}
	p := NewConservative(false)
	p.Attach(h, sim.ResourceCharacteristics{NumMachines: 1, PEsPerMachine: 4, MIPSPerPE: 1, CostPerPESec: 1})

	jobs := make([]*sim.Gridlet, 6)
	for i := 1; i <= 5; i++ {
		jobs[i] = readyGridlet(i, 100, 2, 0)
		p.Submit(jobs[i], false)
	}

	h.runUntil(p, 50)
	canceled := p.Cancel(3, 1)
	require.NotNil(t, canceled)
	assert.Equal(t, sim.StatusCanceled, canceled.Status)

	h.drain(p)
	assert.Equal(t, 100.0, jobs[1].FinishTime)
	assert.Equal(t, 100.0, jobs[2].FinishTime)
	assert.Equal(t, 100.0, jobs[4].FinishTime-jobs[4].ActualCPUTime, "j4 still starts at 100")
	assert.Equal(t, 200.0, jobs[5].FinishTime-jobs[5].ActualCPUTime, "j5 still starts at 200")
}

func TestConservative_CompressionAdvancesStarts(t *testing.T) {
	// with the compression pass enabled, canceling j3 frees [100,200) and
	// j5 moves up to start at 100
	h := &testHost{}
	p := NewConservative(true)
	p.Attach(h, sim.ResourceCharacteristics{NumMachines: 1, PEsPerMachine: 4, MIPSPerPE: 1, CostPerPESec: 1})

	jobs := make([]*sim.Gridlet, 6)
	for i := 1; i <= 5; i++ {
		jobs[i] = readyGridlet(i, 100, 2, 0)
		p.Submit(jobs[i], false)
	}

	h.runUntil(p, 50)
	require.NotNil(t, p.Cancel(3, 1))

	h.drain(p)
	assert.Equal(t, 100.0, jobs[5].FinishTime-jobs[5].ActualCPUTime, "compression re-seats j5 into the freed window")
	assert.Equal(t, 100.0, jobs[4].FinishTime-jobs[4].ActualCPUTime)
}

func TestConservative_AdmissionNeverMovesEarlierJobs(t *testing.T) {
	// once admitted at start s, later admissions never change s
	h := &testHost{}
	p := NewConservative(false)
	p.Attach(h, char4x100())

	first := readyGridlet(1, 1000, 4, 0)
	p.Submit(first, false)
	second := readyGridlet(2, 1000, 4, 0)
	p.Submit(second, false)
	third := readyGridlet(3, 500, 1, 0)
	p.Submit(third, false)

	h.drain(p)
	assert.Equal(t, 10.0, first.FinishTime)
	assert.Equal(t, 10.0, second.FinishTime-second.ActualCPUTime)
	assert.Equal(t, 20.0, third.FinishTime-third.ActualCPUTime, "no gap exists before t=20 for the 1-PE job")
}

func TestSelective_LowSlowdownJobsBackfill(t *testing.T) {
	h := &testHost{}
	p := NewSelective(Options{})
	p.Attach(h, char4x100())

	g := readyGridlet(1, 1000, 2, 0)
	p.Submit(g, false)
	h.drain(p)

	require.Len(t, h.returned, 1)
	assert.Equal(t, sim.StatusSuccess, g.Status)
	assert.Equal(t, 10.0, g.FinishTime)
}

func TestSelective_HighSlowdownJobPromoted(t *testing.T) {
	// a short job stuck behind a long 4-PE job has predicted
	// XF = (wait + runtime)/runtime far above the floor: it receives a firm
	// reservation instead of waiting for backfill luck
	h := &testHost{}
	p := NewSelective(Options{XFFloor: 1.5})
	p.Attach(h, char4x100())

	blocker := readyGridlet(1, 10000, 4, 0) // runs [0,100)
	p.Submit(blocker, false)
	short := readyGridlet(2, 500, 1, 0) // would start at 100: XF = 105/5 = 21
	p.Submit(short, false)
	h.drain(p)

	require.Len(t, h.returned, 2)
	assert.Equal(t, sim.StatusSuccess, short.Status)
	assert.Equal(t, 100.0, short.FinishTime-short.ActualCPUTime)
	assert.Equal(t, 105.0, short.FinishTime)
}

func TestPartitioned_RoutesByRuntime(t *testing.T) {
	// two 2-PE partitions: short jobs (<50s) left, long jobs right
	h := &testHost{}
	p := NewPartitioned([]PartitionSpec{
		{NumPE: 2, Predicate: RuntimePredicate{Max: 50}},
		{NumPE: 2, Predicate: RuntimePredicate{Min: 50}},
	}, false)
	p.Attach(h, char4x100())

	short := readyGridlet(1, 1000, 2, 0) // 10s -> partition 0
	long := readyGridlet(2, 9000, 2, 0)  // 90s -> partition 1
	p.Submit(short, false)
	p.Submit(long, false)
	h.drain(p)

	require.Len(t, h.returned, 2)
	assert.Equal(t, 10.0, short.FinishTime)
	assert.Equal(t, 90.0, long.FinishTime)
	assert.Equal(t, 0.0, long.FinishTime-long.ActualCPUTime, "partitions run independently")
}

func TestPartitioned_NoBorrowingKeepsJobsHome(t *testing.T) {
	h := &testHost{}
	p := NewPartitioned([]PartitionSpec{
		{NumPE: 2, Predicate: RuntimePredicate{Max: 50}},
		{NumPE: 2, Predicate: RuntimePredicate{Min: 50}},
	}, false)
	p.Attach(h, char4x100())

	a := readyGridlet(1, 1000, 2, 0)
	b := readyGridlet(2, 1000, 2, 0)
	p.Submit(a, false)
	p.Submit(b, false) // same home partition; waits even though partition 1 is idle
	h.drain(p)

	assert.Equal(t, 10.0, a.FinishTime)
	assert.Equal(t, 20.0, b.FinishTime, "without borrowing the second short job queues at home")
}

func TestPartitioned_BorrowingUsesIdlePartition(t *testing.T) {
	h := &testHost{}
	p := NewPartitioned([]PartitionSpec{
		{NumPE: 2, Predicate: RuntimePredicate{Max: 50}},
		{NumPE: 2, Predicate: RuntimePredicate{Min: 50}},
	}, true)
	p.Attach(h, char4x100())

	a := readyGridlet(1, 1000, 2, 0)
	b := readyGridlet(2, 1000, 2, 0)
	p.Submit(a, false)
	p.Submit(b, false) // borrows the idle long-job partition
	h.drain(p)

	assert.Equal(t, 10.0, a.FinishTime)
	assert.Equal(t, 10.0, b.FinishTime, "borrowing starts the second job on the idle partition")
}

func TestNew_RegistryCoversAllPolicies(t *testing.T) {
	for _, name := range []string{
		NameSpaceShared, NameTimeShared, NameConservative, NameAggressive,
		NamePartitioned, NameSelective, NameARConservative,
	} {
		require.True(t, IsValid(name))
		p := New(name, Options{Partitions: []PartitionSpec{{NumPE: 2}}})
		assert.Equal(t, name, p.Name())
	}
	assert.False(t, IsValid("gang"))
	assert.Panics(t, func() { New("gang", Options{}) })
}

func TestSelective_CompletionUpdatesCategoryXF(t *testing.T) {
	h := &testHost{}
	p := NewSelective(Options{XFFloor: 1.0, XFWeight: 0.5, CategoryBounds: []float64{100}})
	p.Attach(h, char4x100())

	// a job that waits 10s for a 10s runtime completes with XF = 2
	blocker := readyGridlet(1, 1000, 4, 0)
	p.Submit(blocker, false)
	h.runUntil(p, 0)
	waiterA := readyGridlet(2, 1000, 4, 0)
	p.Submit(waiterA, false)
	h.drain(p)

	require.Equal(t, sim.StatusSuccess, waiterA.Status)
	cat := p.categoryOf(10)
	assert.True(t, p.cats[cat].seeded)
	assert.Greater(t, p.cats[cat].xf, 1.0, "the delayed job raises the category's observed expansion factor")
}
