package policy

import (
	"sort"

	"github.com/gridlab/gridsim/sim"
)

// testHost drives a policy without the full kernel: a tiny deterministic
// event loop over internal events plus capture of returned gridlets.
type testHost struct {
	clock    float64
	seq      int
	events   []hostEvent
	returned []*sim.Gridlet
	acks     []bool
}

type hostEvent struct {
	time float64
	seq  int
	data any
}

func (h *testHost) Clock() float64 { return h.clock }

func (h *testHost) ScheduleInternal(delay float64, data any) {
	h.seq++
	h.events = append(h.events, hostEvent{time: h.clock + delay, seq: h.seq, data: data})
}

func (h *testHost) ReturnGridlet(g *sim.Gridlet) {
	h.returned = append(h.returned, g)
}

func (h *testHost) Ack(_ *sim.Gridlet, accepted bool) {
	h.acks = append(h.acks, accepted)
}

// runUntil pops internal events in (time, seq) order up to and including
// horizon, advancing the clock as the kernel would.
func (h *testHost) runUntil(p AllocationPolicy, horizon float64) {
	for {
		idx := -1
		for i, e := range h.events {
			if e.time > horizon {
				continue
			}
			if idx < 0 || e.time < h.events[idx].time ||
				(e.time == h.events[idx].time && e.seq < h.events[idx].seq) {
				idx = i
			}
		}
		if idx < 0 {
			if horizon > h.clock {
				h.clock = horizon
			}
			return
		}
		e := h.events[idx]
		h.events = append(h.events[:idx], h.events[idx+1:]...)
		h.clock = e.time
		p.HandleInternal(e.data)
	}
}

// drain runs every pending internal event.
func (h *testHost) drain(p AllocationPolicy) {
	for len(h.events) > 0 {
		h.runUntil(p, h.maxTime())
	}
}

func (h *testHost) maxTime() float64 {
	times := make([]float64, 0, len(h.events))
	for _, e := range h.events {
		times = append(times, e.time)
	}
	sort.Float64s(times)
	return times[len(times)-1]
}

// readyGridlet builds a gridlet in READY state as a user would submit it.
func readyGridlet(id int, length float64, numPE int, submitTime float64) *sim.Gridlet {
	g := sim.NewGridlet(id, 1, length, 0, 0, numPE)
	_ = g.SetStatus(sim.StatusReady)
	g.SubmitTime = submitTime
	return g
}

// char4x100 is the 1-machine, 4-PE, 100-MIPS resource used by most tests.
func char4x100() sim.ResourceCharacteristics {
	return sim.ResourceCharacteristics{
		NumMachines:   1,
		PEsPerMachine: 4,
		MIPSPerPE:     100,
		CostPerPESec:  1,
		AllocMode:     sim.AllocSpaceShared,
	}
}
