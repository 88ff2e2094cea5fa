package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGridlet_LegalLifecycle(t *testing.T) {
	g := NewGridlet(1, 7, 3500, 300, 300, 1)
	require.NoError(t, g.SetStatus(StatusReady))
	require.NoError(t, g.SetStatus(StatusQueued))
	require.NoError(t, g.BeginExec(5))
	assert.Equal(t, StatusInExec, g.Status)
	require.NoError(t, g.Finalize(40, 3.0, StatusSuccess))
	assert.Equal(t, StatusSuccess, g.Status)
}

func TestGridlet_InvalidTransitionRejected(t *testing.T) {
	g := NewGridlet(1, 7, 1000, 0, 0, 1)
	err := g.SetStatus(StatusInExec) // CREATED -> INEXEC skips READY/QUEUED
	assert.Error(t, err)
	assert.Equal(t, StatusCreated, g.Status, "status must be unchanged after a rejected transition")
}

func TestGridlet_TerminalStatesAreFinal(t *testing.T) {
	g := NewGridlet(1, 7, 1000, 0, 0, 1)
	require.NoError(t, g.SetStatus(StatusReady))
	require.NoError(t, g.SetStatus(StatusQueued))
	require.NoError(t, g.SetStatus(StatusFailedResourceUnavailable))
	assert.True(t, g.Status.IsTerminal())
	assert.Error(t, g.SetStatus(StatusQueued))
}

func TestGridlet_PauseResumeAccounting(t *testing.T) {
	// 1000 MI at 100 MI/s: run [0,4], pause, resume at 10, finish at 16
	g := NewGridlet(1, 7, 1000, 0, 0, 1)
	require.NoError(t, g.SetStatus(StatusReady))
	require.NoError(t, g.SetStatus(StatusQueued))
	require.NoError(t, g.BeginExec(0))

	g.AccrueExec(4, 100)
	require.NoError(t, g.SetStatus(StatusPaused))
	assert.Equal(t, 400.0, g.FinishedSoFar)
	assert.Equal(t, 600.0, g.RemainingLength())

	require.NoError(t, g.BeginExec(10))
	g.AccrueExec(16, 100)
	require.NoError(t, g.Finalize(16, 1.0, StatusSuccess))

	assert.Equal(t, 1000.0, g.FinishedSoFar)
	assert.Equal(t, 10.0, g.ActualCPUTime, "CPU time sums INEXEC stretches only")
	assert.Equal(t, 10.0, g.Cost)
}

func TestGridlet_AccountingInvariants(t *testing.T) {
	g := NewGridlet(2, 7, 5000, 0, 0, 2)
	g.SubmitTime = 3
	require.NoError(t, g.SetStatus(StatusReady))
	require.NoError(t, g.SetStatus(StatusQueued))
	require.NoError(t, g.BeginExec(5))
	g.AccrueExec(30, 200)
	require.NoError(t, g.Finalize(30, 2.0, StatusSuccess))

	assert.GreaterOrEqual(t, g.FinishTime, g.ExecStart)
	assert.GreaterOrEqual(t, g.SubmitTime, 0.0)
	assert.LessOrEqual(t, g.ActualCPUTime, g.FinishTime-g.SubmitTime)
	assert.Equal(t, 27.0, g.WallClockTime())
	assert.Equal(t, 2.0*25*2, g.Cost, "cost = costPerPESec * cpu * numPE")
}
