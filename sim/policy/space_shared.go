package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/gridlab/gridsim/sim"
	"github.com/gridlab/gridsim/sim/availability"
)

// SpaceShared runs each gridlet on dedicated PEs. Arrivals queue FIFO; when
// capacity frees up, queued gridlets dispatch head-of-line onto the
// numerically-first free PEs.
type SpaceShared struct {
	host    Host
	char    sim.ResourceCharacteristics
	profile *availability.Profile

	queue   []*sim.Gridlet
	running map[int]*scheduled
	paused  map[int]*sim.Gridlet
	epoch   uint64
}

func NewSpaceShared() *SpaceShared {
	return &SpaceShared{
		running: make(map[int]*scheduled),
		paused:  make(map[int]*sim.Gridlet),
	}
}

func (p *SpaceShared) Name() string { return NameSpaceShared }

func (p *SpaceShared) Attach(host Host, char sim.ResourceCharacteristics) {
	p.host = host
	p.char = char
	p.profile = availability.NewProfile(char.TotalPE())
}

func (p *SpaceShared) Submit(g *sim.Gridlet, ackWanted bool) {
	if rejectOversized(p.host, g, p.profile.TotalPE()) {
		return
	}
	if err := g.SetStatus(sim.StatusQueued); err != nil {
		logrus.Warnf("space-shared: %v", err)
	}
	if ackWanted {
		p.host.Ack(g, true)
	}
	p.queue = append(p.queue, g)
	p.trySchedule()
}

// trySchedule dispatches queued gridlets head-of-line while the head's
// demand fits the free set.
func (p *SpaceShared) trySchedule() {
	now := p.host.Clock()
	p.profile.AdvanceTo(now)
	for len(p.queue) > 0 {
		g := p.queue[0]
		runtime := p.char.ExecTime(g.RemainingLength())
		ranges := p.profile.CheckAvailability(now, runtime, g.NumPE)
		if ranges == nil {
			return
		}
		p.queue = p.queue[1:]
		p.startGridlet(g, ranges, now, runtime)
	}
}

func (p *SpaceShared) startGridlet(g *sim.Gridlet, ranges availability.RangeList, now, runtime float64) {
	if err := g.BeginExec(now); err != nil {
		logrus.Warnf("space-shared: %v", err)
		return
	}
	p.epoch++
	rec := &scheduled{
		g:      g,
		ranges: ranges,
		start:  now,
		finish: now + runtime,
		epoch:  p.epoch,
	}
	p.profile.Allocate(now, rec.finish, ranges)
	p.running[g.ID] = rec
	p.host.ScheduleInternal(runtime, finishEvent{gridletID: g.ID, epoch: rec.epoch})
	logrus.Debugf("space-shared: [%.2f] start gridlet %d on %v until %.2f", now, g.ID, ranges, rec.finish)
}

func (p *SpaceShared) HandleInternal(data any) {
	fe, ok := data.(finishEvent)
	if !ok {
		return
	}
	rec := p.running[fe.gridletID]
	if rec == nil || rec.epoch != fe.epoch {
		return // canceled or paused since scheduling
	}
	now := p.host.Clock()
	rec.g.AccrueExec(now, p.char.MIPSPerPE)
	delete(p.running, fe.gridletID)
	if err := rec.g.Finalize(now, p.char.CostPerPESec, sim.StatusSuccess); err != nil {
		logrus.Warnf("space-shared: %v", err)
	}
	p.host.ReturnGridlet(rec.g)
	p.trySchedule()
}

func (p *SpaceShared) Cancel(gridletID, userID int) *sim.Gridlet {
	now := p.host.Clock()
	if rec, ok := p.running[gridletID]; ok && rec.g.UserID == userID {
		rec.g.AccrueExec(now, p.char.MIPSPerPE)
		p.release(rec, now)
		delete(p.running, gridletID)
		_ = rec.g.Finalize(now, p.char.CostPerPESec, sim.StatusCanceled)
		p.trySchedule()
		return rec.g
	}
	if g := p.takeQueued(gridletID, userID); g != nil {
		_ = g.Finalize(now, 0, sim.StatusCanceled)
		return g
	}
	if g, ok := p.paused[gridletID]; ok && g.UserID == userID {
		delete(p.paused, gridletID)
		_ = g.Finalize(now, p.char.CostPerPESec, sim.StatusCanceled)
		return g
	}
	return nil
}

func (p *SpaceShared) Pause(gridletID, userID int) bool {
	rec, ok := p.running[gridletID]
	if !ok || rec.g.UserID != userID {
		return false
	}
	now := p.host.Clock()
	rec.g.AccrueExec(now, p.char.MIPSPerPE)
	if err := rec.g.SetStatus(sim.StatusPaused); err != nil {
		return false
	}
	p.release(rec, now)
	delete(p.running, gridletID)
	p.paused[gridletID] = rec.g
	p.trySchedule()
	return true
}

func (p *SpaceShared) Resume(gridletID, userID int) bool {
	g, ok := p.paused[gridletID]
	if !ok || g.UserID != userID {
		return false
	}
	delete(p.paused, gridletID)
	now := p.host.Clock()
	p.profile.AdvanceTo(now)
	runtime := p.char.ExecTime(g.RemainingLength())
	ranges := p.profile.CheckAvailability(now, runtime, g.NumPE)
	if ranges == nil {
		// no immediate room: the gridlet waits at the back of the ready
		// queue and restarts from PAUSED when capacity frees up
		p.queue = append(p.queue, g)
		return true
	}
	p.startGridlet(g, ranges, now, runtime)
	return true
}

func (p *SpaceShared) Move(gridletID, userID int) *sim.Gridlet {
	if g := p.takeQueued(gridletID, userID); g != nil {
		return g
	}
	rec, ok := p.running[gridletID]
	if !ok || rec.g.UserID != userID {
		if g, ok := p.paused[gridletID]; ok && g.UserID == userID {
			delete(p.paused, gridletID)
			return g
		}
		return nil
	}
	now := p.host.Clock()
	rec.g.AccrueExec(now, p.char.MIPSPerPE)
	_ = rec.g.SetStatus(sim.StatusPaused)
	p.release(rec, now)
	delete(p.running, gridletID)
	p.trySchedule()
	return rec.g
}

func (p *SpaceShared) Status(gridletID, userID int) sim.GridletStatus {
	if rec, ok := p.running[gridletID]; ok && rec.g.UserID == userID {
		return rec.g.Status
	}
	for _, g := range p.queue {
		if g.ID == gridletID && g.UserID == userID {
			return g.Status
		}
	}
	if g, ok := p.paused[gridletID]; ok && g.UserID == userID {
		return g.Status
	}
	return ""
}

// release frees the unexpired tail of a running gridlet's allocation.
func (p *SpaceShared) release(rec *scheduled, now float64) {
	if now < rec.finish {
		p.profile.Release(now, rec.finish, rec.ranges)
	}
}

func (p *SpaceShared) takeQueued(gridletID, userID int) *sim.Gridlet {
	for i, g := range p.queue {
		if g.ID == gridletID && g.UserID == userID {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return g
		}
	}
	return nil
}
