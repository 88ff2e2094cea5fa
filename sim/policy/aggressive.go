package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/gridlab/gridsim/sim"
	"github.com/gridlab/gridsim/sim/availability"
)

// Aggressive implements EASY backfilling: only the head of the queue holds a
// profile reservation (the pivot). Later gridlets may start out of order
// when they fit the current free set without touching the pivot's reserved
// window, so the pivot's start never moves later.
type Aggressive struct {
	host    Host
	char    sim.ResourceCharacteristics
	profile *availability.Profile

	queue   []*sim.Gridlet
	running map[int]*scheduled
	paused  map[int]*sim.Gridlet
	pivot   *scheduled
	epoch   uint64
}

func NewAggressive() *Aggressive {
	return &Aggressive{
		running: make(map[int]*scheduled),
		paused:  make(map[int]*sim.Gridlet),
	}
}

func (p *Aggressive) Name() string { return NameAggressive }

func (p *Aggressive) Attach(host Host, char sim.ResourceCharacteristics) {
	p.host = host
	p.char = char
	p.profile = availability.NewProfile(char.TotalPE())
}

// AttachRestricted binds the policy to a PE subset; used by the
// multi-partition policy.
func (p *Aggressive) AttachRestricted(host Host, char sim.ResourceCharacteristics, pes availability.RangeList) {
	p.host = host
	p.char = char
	p.profile = availability.NewProfileFromRanges(pes)
}

// CanStartNow reports whether g would start immediately if submitted.
func (p *Aggressive) CanStartNow(g *sim.Gridlet) bool {
	if g.NumPE > p.profile.TotalPE() {
		return false
	}
	now := p.host.Clock()
	p.profile.AdvanceTo(now)
	runtime := p.char.ExecTime(g.RemainingLength())
	return p.profile.CheckAvailability(now, runtime, g.NumPE) != nil
}

func (p *Aggressive) Submit(g *sim.Gridlet, ackWanted bool) {
	if rejectOversized(p.host, g, p.profile.TotalPE()) {
		return
	}
	if err := g.SetStatus(sim.StatusQueued); err != nil {
		logrus.Warnf("aggressive: %v", err)
	}
	if ackWanted {
		p.host.Ack(g, true)
	}
	p.queue = append(p.queue, g)
	p.schedulePass()
}

// clearPivot withdraws the head-of-queue reservation, if any.
func (p *Aggressive) clearPivot() {
	if p.pivot == nil {
		return
	}
	p.profile.Release(p.pivot.start, p.pivot.finish, p.pivot.ranges)
	p.pivot = nil
}

// schedulePass starts the queue head while it fits, re-reserves the pivot
// otherwise, then backfills the remaining queue FIFO against the profile
// (which contains the pivot's window, so backfill cannot delay it).
func (p *Aggressive) schedulePass() {
	now := p.host.Clock()
	p.profile.AdvanceTo(now)

	for len(p.queue) > 0 {
		head := p.queue[0]
		runtime := p.char.ExecTime(head.RemainingLength())
		p.clearPivot()
		if ranges := p.profile.CheckAvailability(now, runtime, head.NumPE); ranges != nil {
			p.queue = p.queue[1:]
			p.start(head, ranges, now, runtime)
			continue
		}
		start, ranges, ok := p.profile.FindStartTime(runtime, head.NumPE, now)
		if !ok {
			p.queue = p.queue[1:]
			_ = head.SetStatus(sim.StatusFailed)
			p.host.ReturnGridlet(head)
			continue
		}
		p.pivot = &scheduled{g: head, ranges: ranges, start: start, finish: start + runtime}
		p.profile.Allocate(start, p.pivot.finish, ranges)
		logrus.Debugf("aggressive: [%.2f] pivot gridlet %d reserved %v @ %.2f", now, head.ID, ranges, start)
		break
	}

	// backfill behind the pivot
	i := 1
	for i < len(p.queue) {
		g := p.queue[i]
		runtime := p.char.ExecTime(g.RemainingLength())
		ranges := p.profile.CheckAvailability(now, runtime, g.NumPE)
		if ranges == nil {
			i++
			continue
		}
		p.queue = append(p.queue[:i], p.queue[i+1:]...)
		p.start(g, ranges, now, runtime)
	}
}

func (p *Aggressive) start(g *sim.Gridlet, ranges availability.RangeList, now, runtime float64) {
	if err := g.BeginExec(now); err != nil {
		logrus.Warnf("aggressive: %v", err)
		return
	}
	p.epoch++
	rec := &scheduled{g: g, ranges: ranges, start: now, finish: now + runtime, started: true, epoch: p.epoch}
	p.profile.Allocate(now, rec.finish, ranges)
	p.running[g.ID] = rec
	p.host.ScheduleInternal(runtime, finishEvent{gridletID: g.ID, epoch: rec.epoch})
}

func (p *Aggressive) HandleInternal(data any) {
	fe, ok := data.(finishEvent)
	if !ok {
		return
	}
	rec := p.running[fe.gridletID]
	if rec == nil || rec.epoch != fe.epoch {
		return
	}
	now := p.host.Clock()
	rec.g.AccrueExec(now, p.char.MIPSPerPE)
	delete(p.running, fe.gridletID)
	if err := rec.g.Finalize(now, p.char.CostPerPESec, sim.StatusSuccess); err != nil {
		logrus.Warnf("aggressive: %v", err)
	}
	p.host.ReturnGridlet(rec.g)
	p.schedulePass()
}

func (p *Aggressive) Cancel(gridletID, userID int) *sim.Gridlet {
	now := p.host.Clock()
	if rec, ok := p.running[gridletID]; ok && rec.g.UserID == userID {
		rec.g.AccrueExec(now, p.char.MIPSPerPE)
		if now < rec.finish {
			p.profile.Release(now, rec.finish, rec.ranges)
		}
		delete(p.running, gridletID)
		_ = rec.g.Finalize(now, p.char.CostPerPESec, sim.StatusCanceled)
		p.schedulePass()
		return rec.g
	}
	for i, g := range p.queue {
		if g.ID == gridletID && g.UserID == userID {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			_ = g.Finalize(now, 0, sim.StatusCanceled)
			p.schedulePass()
			return g
		}
	}
	if g, ok := p.paused[gridletID]; ok && g.UserID == userID {
		delete(p.paused, gridletID)
		_ = g.Finalize(now, p.char.CostPerPESec, sim.StatusCanceled)
		return g
	}
	return nil
}

func (p *Aggressive) Pause(gridletID, userID int) bool {
	rec, ok := p.running[gridletID]
	if !ok || rec.g.UserID != userID {
		return false
	}
	now := p.host.Clock()
	rec.g.AccrueExec(now, p.char.MIPSPerPE)
	if err := rec.g.SetStatus(sim.StatusPaused); err != nil {
		return false
	}
	if now < rec.finish {
		p.profile.Release(now, rec.finish, rec.ranges)
	}
	delete(p.running, gridletID)
	p.paused[gridletID] = rec.g
	p.schedulePass()
	return true
}

func (p *Aggressive) Resume(gridletID, userID int) bool {
	g, ok := p.paused[gridletID]
	if !ok || g.UserID != userID {
		return false
	}
	delete(p.paused, gridletID)
	p.queue = append(p.queue, g)
	p.schedulePass()
	return true
}

func (p *Aggressive) Move(gridletID, userID int) *sim.Gridlet {
	now := p.host.Clock()
	if rec, ok := p.running[gridletID]; ok && rec.g.UserID == userID {
		rec.g.AccrueExec(now, p.char.MIPSPerPE)
		_ = rec.g.SetStatus(sim.StatusPaused)
		if now < rec.finish {
			p.profile.Release(now, rec.finish, rec.ranges)
		}
		delete(p.running, gridletID)
		p.schedulePass()
		return rec.g
	}
	for i, g := range p.queue {
		if g.ID == gridletID && g.UserID == userID {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			p.schedulePass()
			return g
		}
	}
	if g, ok := p.paused[gridletID]; ok && g.UserID == userID {
		delete(p.paused, gridletID)
		return g
	}
	return nil
}

func (p *Aggressive) Status(gridletID, userID int) sim.GridletStatus {
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
