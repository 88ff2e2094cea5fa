package policy

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/gridlab/gridsim/sim"
)

// TimeShared executes every submitted gridlet immediately, dividing the
// resource's capacity among residents. A gridlet's nominal rate is
// MIPS × min(numPE, totalPE); when the summed PE demand exceeds the pool,
// every rate is scaled by totalPE / Σ demands. Each arrival or departure
// re-rates the residents and re-estimates the next completion.
type TimeShared struct {
	host Host
	char sim.ResourceCharacteristics

	running map[int]*tsResident
	paused  map[int]*sim.Gridlet
	epoch   uint64
}

// tsResident is one executing gridlet and its current rate in MI/s.
type tsResident struct {
	g    *sim.Gridlet
	rate float64
}

func NewTimeShared() *TimeShared {
	return &TimeShared{
		running: make(map[int]*tsResident),
		paused:  make(map[int]*sim.Gridlet),
	}
}

func (p *TimeShared) Name() string { return NameTimeShared }

func (p *TimeShared) Attach(host Host, char sim.ResourceCharacteristics) {
	p.host = host
	p.char = char
}

func (p *TimeShared) Submit(g *sim.Gridlet, ackWanted bool) {
	if rejectOversized(p.host, g, p.char.TotalPE()) {
		return
	}
	if err := g.SetStatus(sim.StatusQueued); err != nil {
		logrus.Warnf("time-shared: %v", err)
	}
	if ackWanted {
		p.host.Ack(g, true)
	}
	now := p.host.Clock()
	p.accrueAll(now)
	if err := g.BeginExec(now); err != nil {
		logrus.Warnf("time-shared: %v", err)
		return
	}
	p.running[g.ID] = &tsResident{g: g}
	p.rerate(now)
}

// residentIDs returns the running gridlet ids in ascending order.
func (p *TimeShared) residentIDs() []int {
	ids := make([]int, 0, len(p.running))
	for id := range p.running {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// accrueAll folds progress since the last rate change into every resident.
func (p *TimeShared) accrueAll(now float64) {
	for _, r := range p.running {
		r.g.AccrueExec(now, r.rate)
	}
}

// rerate recomputes per-gridlet rates, completes anything that is done, and
// schedules a finish event for the earliest remaining completion. Stale
// finish events are ignored via the epoch counter.
func (p *TimeShared) rerate(now float64) {
	totalPE := p.char.TotalPE()
	demand := 0
	for _, r := range p.running {
		demand += min(r.g.NumPE, totalPE)
	}
	factor := 1.0
	if demand > totalPE {
		factor = float64(totalPE) / float64(demand)
	}

	for _, r := range p.running {
		r.rate = p.char.MIPSPerPE * float64(min(r.g.NumPE, totalPE)) * factor
	}

	// complete residents with no work left, in gridlet-id order so return
	// order is deterministic (guards float dust after accrual)
	for _, id := range p.residentIDs() {
		r := p.running[id]
		if r.g.RemainingLength() <= 1e-9 {
			delete(p.running, id)
			if err := r.g.Finalize(now, p.char.CostPerPESec, sim.StatusSuccess); err != nil {
				logrus.Warnf("time-shared: %v", err)
			}
			p.host.ReturnGridlet(r.g)
		}
	}
	if len(p.running) == 0 {
		return
	}

	next := math.Inf(1)
	for _, r := range p.running {
		if r.rate <= 0 {
			continue
		}
		if t := now + r.g.RemainingLength()/r.rate; t < next {
			next = t
		}
	}
	if math.IsInf(next, 1) {
		return
	}
	p.epoch++
	p.host.ScheduleInternal(next-now, finishEvent{epoch: p.epoch})
}

func (p *TimeShared) HandleInternal(data any) {
	fe, ok := data.(finishEvent)
	if !ok || fe.epoch != p.epoch {
		return // superseded by a later re-rating
	}
	now := p.host.Clock()
	p.accrueAll(now)
	p.rerate(now)
}

func (p *TimeShared) Cancel(gridletID, userID int) *sim.Gridlet {
	now := p.host.Clock()
	if r, ok := p.running[gridletID]; ok && r.g.UserID == userID {
		p.accrueAll(now)
		delete(p.running, gridletID)
		_ = r.g.Finalize(now, p.char.CostPerPESec, sim.StatusCanceled)
		p.rerate(now)
		return r.g
	}
	if g, ok := p.paused[gridletID]; ok && g.UserID == userID {
		delete(p.paused, gridletID)
		_ = g.Finalize(now, p.char.CostPerPESec, sim.StatusCanceled)
		return g
	}
	return nil
}

func (p *TimeShared) Pause(gridletID, userID int) bool {
	r, ok := p.running[gridletID]
	if !ok || r.g.UserID != userID {
		return false
	}
	now := p.host.Clock()
	p.accrueAll(now)
	if err := r.g.SetStatus(sim.StatusPaused); err != nil {
		return false
	}
	delete(p.running, gridletID)
	p.paused[gridletID] = r.g
	p.rerate(now)
	return true
}

func (p *TimeShared) Resume(gridletID, userID int) bool {
	g, ok := p.paused[gridletID]
	if !ok || g.UserID != userID {
		return false
	}
	delete(p.paused, gridletID)
	now := p.host.Clock()
	p.accrueAll(now)
	if err := g.BeginExec(now); err != nil {
		return false
	}
	p.running[g.ID] = &tsResident{g: g}
	p.rerate(now)
	return true
}

func (p *TimeShared) Move(gridletID, userID int) *sim.Gridlet {
	now := p.host.Clock()
	if r, ok := p.running[gridletID]; ok && r.g.UserID == userID {
		p.accrueAll(now)
		_ = r.g.SetStatus(sim.StatusPaused)
		delete(p.running, gridletID)
		p.rerate(now)
		return r.g
	}
	if g, ok := p.paused[gridletID]; ok && g.UserID == userID {
		delete(p.paused, gridletID)
		return g
	}
	return nil
}

func (p *TimeShared) Status(gridletID, userID int) sim.GridletStatus {
	if r, ok := p.running[gridletID]; ok && r.g.UserID == userID {
		return r.g.Status
	}
	if g, ok := p.paused[gridletID]; ok && g.UserID == userID {
		return g.Status
	}
	return ""
}
