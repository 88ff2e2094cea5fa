package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridlab/gridsim/sim"
	"github.com/gridlab/gridsim/sim/availability"
	"github.com/gridlab/gridsim/sim/policy"
)

// testUser lets tests script a user entity inline.
type testUser struct {
	name string
	body func(env *sim.Env)
}

func (u *testUser) Name() string      { return u.name }
func (u *testUser) Body(env *sim.Env) { u.body(env) }

func char(machines, pes int, mips float64, mode sim.AllocMode) sim.ResourceCharacteristics {
	return sim.ResourceCharacteristics{
		NumMachines:   machines,
		PEsPerMachine: pes,
		MIPSPerPE:     mips,
		CostPerPESec:  3,
		AllocMode:     mode,
	}
}

func TestResource_SpaceSharedEndToEnd(t *testing.T) {
	// full-kernel scenario: 1x4x100, three 1-PE
	// gridlets of 3500/5000/9000 MI finish at 35/50/90
	s := sim.NewSimulation(7)

	res := NewResource("Res_0", char(1, 4, 100, sim.AllocSpaceShared), policy.NewSpaceShared(), "")
	_, err := s.Register(res)
	require.NoError(t, err)

	var returned []*sim.Gridlet
	user := &testUser{name: "User_0", body: func(env *sim.Env) {
		for i, length := range []float64{3500, 5000, 9000} {
			g := sim.NewGridlet(i+1, env.ID(), length, 300, 300, 1)
			_ = g.SetStatus(sim.StatusReady)
			g.SubmitTime = env.Clock()
			env.Send("Res_0", 0, sim.TagGridletSubmit, &SubmitRequest{Gridlet: g, AckWanted: false})
		}
		for len(returned) < 3 {
			msg := env.ReceiveTagged(sim.TagGridletReturn, sim.TagEndOfSimulation)
			if msg.Tag == sim.TagEndOfSimulation {
				return
			}
			returned = append(returned, msg.Data.(*sim.Gridlet))
		}
	}}
	_, err = s.Register(user)
	require.NoError(t, err)

	require.NoError(t, s.Run())

	require.Len(t, returned, 3)
	want := map[int]float64{1: 35, 2: 50, 3: 90}
	for _, g := range returned {
		assert.Equal(t, sim.StatusSuccess, g.Status)
		assert.Equal(t, want[g.ID], g.FinishTime)
		assert.GreaterOrEqual(t, g.FinishTime, g.SubmitTime)
		assert.LessOrEqual(t, g.ActualCPUTime, g.FinishTime-g.SubmitTime)
		assert.Equal(t, 3*g.ActualCPUTime, g.Cost)
	}
}

func TestResource_TimeSharedEndToEnd(t *testing.T) {
	// 4 gridlets of 1000 MI on 1x4x100 time-shared all finish at t=10
	s := sim.NewSimulation(7)

	res := NewResource("Res_TS", char(1, 4, 100, sim.AllocTimeShared), policy.NewTimeShared(), "")
	_, err := s.Register(res)
	require.NoError(t, err)

	var returned []*sim.Gridlet
	user := &testUser{name: "User_0", body: func(env *sim.Env) {
		for i := 1; i <= 4; i++ {
			g := sim.NewGridlet(i, env.ID(), 1000, 0, 0, 1)
			_ = g.SetStatus(sim.StatusReady)
			env.Send("Res_TS", 0, sim.TagGridletSubmit, &SubmitRequest{Gridlet: g})
		}
		for len(returned) < 4 {
			msg := env.ReceiveTagged(sim.TagGridletReturn, sim.TagEndOfSimulation)
			if msg.Tag == sim.TagEndOfSimulation {
				return
			}
			returned = append(returned, msg.Data.(*sim.Gridlet))
		}
	}}
	_, err = s.Register(user)
	require.NoError(t, err)

	require.NoError(t, s.Run())

	require.Len(t, returned, 4)
	for _, g := range returned {
		assert.Equal(t, sim.StatusSuccess, g.Status)
		assert.InDelta(t, 10.0, g.FinishTime, 1e-9)
	}
}

func TestResource_CancelViaMessages(t *testing.T) {
	s := sim.NewSimulation(7)

	res := NewResource("Res_0", char(1, 4, 100, sim.AllocSpaceShared), policy.NewSpaceShared(), "")
	_, err := s.Register(res)
	require.NoError(t, err)

	var canceled *sim.Gridlet
	user := &testUser{name: "User_0", body: func(env *sim.Env) {
		g := sim.NewGridlet(1, env.ID(), 10000, 0, 0, 1)
		_ = g.SetStatus(sim.StatusReady)
		env.Send("Res_0", 0, sim.TagGridletSubmit, &SubmitRequest{Gridlet: g})
		env.Hold(20)
		env.Send("Res_0", 0, sim.TagGridletCancel, &GridletRef{GridletID: 1, UserID: env.ID()})
		msg := env.ReceiveTagged(sim.TagGridletReturn)
		if msg.Data != nil {
			canceled = msg.Data.(*sim.Gridlet)
		}
	}}
	_, err = s.Register(user)
	require.NoError(t, err)

	require.NoError(t, s.Run())

	require.NotNil(t, canceled)
	assert.Equal(t, sim.StatusCanceled, canceled.Status)
	assert.Equal(t, 20.0, canceled.ActualCPUTime)
}

func TestResource_ReservationWithoutSupport(t *testing.T) {
	s := sim.NewSimulation(7)

	res := NewResource("Res_0", char(1, 4, 100, sim.AllocSpaceShared), policy.NewSpaceShared(), "")
	_, err := s.Register(res)
	require.NoError(t, err)

	var code policy.ReservationErrorCode
	user := &testUser{name: "User_0", body: func(env *sim.Env) {
		env.Send("Res_0", 0, sim.TagReservationCreate, &CreateReservation{Start: 100, Duration: 50, NumPE: 1})
		msg := env.ReceiveTagged(sim.TagReservationResult)
		code = msg.Data.(ReservationResult).Code
	}}
	_, err = s.Register(user)
	require.NoError(t, err)

	require.NoError(t, s.Run())
	assert.Equal(t, policy.ErrNoARSupport, code)
}

func TestResource_ReservationLifecycleViaMessages(t *testing.T) {
	// CREATE -> ACCEPTED, COMMIT bundled with a gridlet -> runs inside the
	// window
	s := sim.NewSimulation(7)

	res := NewResource("Res_AR", char(1, 4, 10, sim.AllocAdvanceRes), policy.NewARConservative(policy.Options{}), "")
	_, err := s.Register(res)
	require.NoError(t, err)

	var created ReservationResult
	var returned *sim.Gridlet
	user := &testUser{name: "User_0", body: func(env *sim.Env) {
		env.Send("Res_AR", 0, sim.TagReservationCreate, &CreateReservation{Start: 100, Duration: 200, NumPE: 2})
		created = env.ReceiveTagged(sim.TagReservationResult).Data.(ReservationResult)
		if !created.OK() {
			return
		}
		g := sim.NewGridlet(1, env.ID(), 1000, 0, 0, 2) // 100 s at 10 MIPS
		_ = g.SetStatus(sim.StatusReady)
		env.Send("Res_AR", 0, sim.TagReservationCommit, &ReservationRef{ReservationID: created.Reservation.ID, Gridlet: g})
		if !env.ReceiveTagged(sim.TagReservationResult).Data.(ReservationResult).OK() {
			return
		}
		msg := env.ReceiveTagged(sim.TagGridletReturn, sim.TagEndOfSimulation)
		if msg.Tag == sim.TagGridletReturn {
			returned = msg.Data.(*sim.Gridlet)
		}
	}}
	_, err = s.Register(user)
	require.NoError(t, err)

	require.NoError(t, s.Run())

	require.True(t, created.OK())
	require.NotNil(t, returned)
	assert.Equal(t, sim.StatusSuccess, returned.Status)
	assert.Equal(t, 200.0, returned.FinishTime, "gridlet executes inside the reserved window")
}

func TestGIS_LocalAndGlobalQueries(t *testing.T) {
	s := sim.NewSimulation(7)

	_, err := s.Register(NewSystemGIS())
	require.NoError(t, err)
	_, err = s.Register(NewRegionalGIS("gis-east"))
	require.NoError(t, err)
	_, err = s.Register(NewRegionalGIS("gis-west"))
	require.NoError(t, err)

	east := NewResource("Res_East", char(1, 4, 100, sim.AllocSpaceShared), policy.NewSpaceShared(), "gis-east")
	west := NewResource("Res_West", char(1, 8, 50, sim.AllocAdvanceRes), policy.NewARConservative(policy.Options{}), "gis-west")
	_, err = s.Register(east)
	require.NoError(t, err)
	_, err = s.Register(west)
	require.NoError(t, err)

	var local, global, arList []RegistryEntry
	user := &testUser{name: "User_0", body: func(env *sim.Env) {
		env.Hold(1) // let registrations land

		env.Send("gis-east", 0, sim.TagInquiryLocalResources, nil)
		local = env.ReceiveTagged(sim.TagResourceList).Data.(*ResourceListReply).Resources

		env.Send("gis-east", 0, sim.TagInquiryGlobalResources, nil)
		global = env.ReceiveTagged(sim.TagResourceList).Data.(*ResourceListReply).Resources

		env.Send("gis-west", 0, sim.TagInquiryLocalResourcesAR, nil)
		arList = env.ReceiveTagged(sim.TagResourceARList).Data.(*ResourceListReply).Resources
	}}
	_, err = s.Register(user)
	require.NoError(t, err)

	require.NoError(t, s.Run())

	require.Len(t, local, 1)
	assert.Equal(t, "Res_East", local[0].Name)

	require.Len(t, global, 2, "global fan-out aggregates both regions")

	require.Len(t, arList, 1)
	assert.Equal(t, "Res_West", arList[0].Name)
	assert.True(t, arList[0].ARCapable)
}

func TestGIS_ConcurrentGlobalQueriersCoalesced(t *testing.T) {
	s := sim.NewSimulation(7)

	_, err := s.Register(NewSystemGIS())
	require.NoError(t, err)
	_, err = s.Register(NewRegionalGIS("gis-a"))
	require.NoError(t, err)
	_, err = s.Register(NewRegionalGIS("gis-b"))
	require.NoError(t, err)

	res := NewResource("Res_B", char(1, 2, 100, sim.AllocSpaceShared), policy.NewSpaceShared(), "gis-b")
	_, err = s.Register(res)
	require.NoError(t, err)

	results := make(map[string]int)
	mkUser := func(name string) *testUser {
		return &testUser{name: name, body: func(env *sim.Env) {
			env.Hold(1)
			env.Send("gis-a", 0, sim.TagInquiryGlobalResources, nil)
			reply := env.ReceiveTagged(sim.TagResourceList).Data.(*ResourceListReply)
			results[name] = len(reply.Resources)
		}}
	}
	_, err = s.Register(mkUser("User_1"))
	require.NoError(t, err)
	_, err = s.Register(mkUser("User_2"))
	require.NoError(t, err)

	require.NoError(t, s.Run())

	assert.Equal(t, 1, results["User_1"])
	assert.Equal(t, 1, results["User_2"], "second querier joins the in-flight fan-out and still gets the answer")
}

func TestGIS_FailureNotificationRemovesResource(t *testing.T) {
	s := sim.NewSimulation(7)

	_, err := s.Register(NewSystemGIS())
	require.NoError(t, err)
	gis := NewRegionalGIS("gis-a")
	_, err = s.Register(gis)
	require.NoError(t, err)

	res := NewResource("Res_A", char(1, 2, 100, sim.AllocSpaceShared), policy.NewSpaceShared(), "gis-a")
	resID, err := s.Register(res)
	require.NoError(t, err)

	var before, after int
	user := &testUser{name: "User_0", body: func(env *sim.Env) {
		env.Hold(1)
		env.Send("gis-a", 0, sim.TagInquiryLocalResources, nil)
		before = len(env.ReceiveTagged(sim.TagResourceList).Data.(*ResourceListReply).Resources)

		env.Send("gis-a", 0, sim.TagNotifyResourceFailure, &FailureNotice{ResourceID: resID})
		env.Hold(1)
		env.Send("gis-a", 0, sim.TagInquiryLocalResources, nil)
		after = len(env.ReceiveTagged(sim.TagResourceList).Data.(*ResourceListReply).Resources)
	}}
	_, err = s.Register(user)
	require.NoError(t, err)

	require.NoError(t, s.Run())
	assert.Equal(t, 1, before)
	assert.Equal(t, 0, after, "failed resources leave the active set until re-registration")
}

func TestResource_ListFreeTimeViaMessages(t *testing.T) {
	s := sim.NewSimulation(7)

	res := NewResource("Res_AR", char(1, 4, 10, sim.AllocAdvanceRes), policy.NewARConservative(policy.Options{}), "")
	_, err := s.Register(res)
	require.NoError(t, err)

	var slots []availability.Slot
	user := &testUser{name: "User_0", body: func(env *sim.Env) {
		env.Send("Res_AR", 0, sim.TagReservationCreate, &CreateReservation{Start: 100, Duration: 100, NumPE: 4})
		if !env.ReceiveTagged(sim.TagReservationResult).Data.(ReservationResult).OK() {
			return
		}
		env.Send("Res_AR", 0, sim.TagReservationListFreeTime, &FreeTimeQuery{From: 0, To: 300})
		slots = env.ReceiveTagged(sim.TagReservationListFreeTime).Data.([]availability.Slot)
	}}
	_, err = s.Register(user)
	require.NoError(t, err)

	require.NoError(t, s.Run())

	require.Len(t, slots, 3)
	assert.Equal(t, 4, slots[0].Ranges.Count())
	assert.Equal(t, 0, slots[1].Ranges.Count(), "the reserved stretch has no free PEs")
	assert.Equal(t, 100.0, slots[1].Start)
	assert.Equal(t, 200.0, slots[2].Start)
}

func TestResource_PauseResumeViaMessages(t *testing.T) {
	s := sim.NewSimulation(7)

	res := NewResource("Res_0", char(1, 4, 100, sim.AllocSpaceShared), policy.NewSpaceShared(), "")
	_, err := s.Register(res)
	require.NoError(t, err)

	var returned *sim.Gridlet
	user := &testUser{name: "User_0", body: func(env *sim.Env) {
		g := sim.NewGridlet(1, env.ID(), 1000, 0, 0, 1)
		_ = g.SetStatus(sim.StatusReady)
		env.Send("Res_0", 0, sim.TagGridletSubmit, &SubmitRequest{Gridlet: g})
		env.Hold(4)
		env.Send("Res_0", 0, sim.TagGridletPause, &GridletRef{GridletID: 1, UserID: env.ID()})
		reply := env.ReceiveTagged(sim.TagGridletStatus).Data.(*StatusReply)
		if reply.Status != sim.StatusPaused {
			return
		}
		env.Hold(6)
		env.Send("Res_0", 0, sim.TagGridletResume, &GridletRef{GridletID: 1, UserID: env.ID()})
		env.ReceiveTagged(sim.TagGridletStatus)
		msg := env.ReceiveTagged(sim.TagGridletReturn, sim.TagEndOfSimulation)
		if msg.Tag == sim.TagGridletReturn {
			returned = msg.Data.(*sim.Gridlet)
		}
	}}
	_, err = s.Register(user)
	require.NoError(t, err)

	require.NoError(t, s.Run())

	require.NotNil(t, returned)
	assert.Equal(t, sim.StatusSuccess, returned.Status)
	assert.Equal(t, 16.0, returned.FinishTime, "paused [4,10), resumed with 600 MI left")
	assert.Equal(t, 10.0, returned.ActualCPUTime)
}
