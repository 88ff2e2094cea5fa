package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/gridlab/gridsim/sim"
	"github.com/gridlab/gridsim/sim/availability"
)

// Conservative implements conservative backfilling: every arrival receives a
// firm profile reservation at the earliest feasible start, and that start is
// never delayed by later admissions. Early releases leave the schedule
// untouched unless the optional compression pass is enabled.
type Conservative struct {
	host    Host
	char    sim.ResourceCharacteristics
	profile *availability.Profile

	jobs        map[int]*scheduled
	order       []int // admission order, for the compression pass
	paused      map[int]*sim.Gridlet
	compression bool
	epoch       uint64
}

func NewConservative(compression bool) *Conservative {
	return &Conservative{
		jobs:        make(map[int]*scheduled),
		paused:      make(map[int]*sim.Gridlet),
		compression: compression,
	}
}

func (p *Conservative) Name() string { return NameConservative }

func (p *Conservative) Attach(host Host, char sim.ResourceCharacteristics) {
	p.host = host
	p.char = char
	p.profile = availability.NewProfile(char.TotalPE())
}

func (p *Conservative) Submit(g *sim.Gridlet, ackWanted bool) {
	if rejectOversized(p.host, g, p.profile.TotalPE()) {
		return
	}
	if err := g.SetStatus(sim.StatusQueued); err != nil {
		logrus.Warnf("conservative: %v", err)
	}
	if ackWanted {
		p.host.Ack(g, true)
	}
	now := p.host.Clock()
	p.profile.AdvanceTo(now)
	p.admit(g, now)
}

// admit reserves the earliest feasible window for g and schedules its start.
func (p *Conservative) admit(g *sim.Gridlet, now float64) {
	runtime := p.char.ExecTime(g.RemainingLength())
	start, ranges, ok := p.profile.FindStartTime(runtime, g.NumPE, now)
	if !ok {
		_ = g.SetStatus(sim.StatusFailed)
		p.host.ReturnGridlet(g)
		return
	}
	p.epoch++
	rec := &scheduled{
		g:      g,
		ranges: ranges,
		start:  start,
		finish: start + runtime,
		epoch:  p.epoch,
	}
	p.profile.Allocate(start, rec.finish, ranges)
	p.jobs[g.ID] = rec
	p.order = append(p.order, g.ID)
	p.host.ScheduleInternal(start-now, startEvent{gridletID: g.ID, epoch: rec.epoch})
	logrus.Debugf("conservative: [%.2f] gridlet %d reserved %v @ [%.2f,%.2f)", now, g.ID, ranges, start, rec.finish)
}

func (p *Conservative) HandleInternal(data any) {
	switch ev := data.(type) {
	case startEvent:
		rec := p.jobs[ev.gridletID]
		if rec == nil || rec.epoch != ev.epoch || rec.started {
			return
		}
		now := p.host.Clock()
		if err := rec.g.BeginExec(now); err != nil {
			logrus.Warnf("conservative: %v", err)
			return
		}
		rec.started = true
		p.host.ScheduleInternal(rec.finish-now, finishEvent{gridletID: ev.gridletID, epoch: rec.epoch})
	case finishEvent:
		rec := p.jobs[ev.gridletID]
		if rec == nil || rec.epoch != ev.epoch || !rec.started {
			return
		}
		now := p.host.Clock()
		rec.g.AccrueExec(now, p.char.MIPSPerPE)
		p.remove(ev.gridletID)
		if err := rec.g.Finalize(now, p.char.CostPerPESec, sim.StatusSuccess); err != nil {
			logrus.Warnf("conservative: %v", err)
		}
		p.host.ReturnGridlet(rec.g)
	}
}

func (p *Conservative) Cancel(gridletID, userID int) *sim.Gridlet {
	now := p.host.Clock()
	if rec, ok := p.jobs[gridletID]; ok && rec.g.UserID == userID {
		p.releaseJob(rec, now)
		p.remove(gridletID)
		_ = rec.g.Finalize(now, p.char.CostPerPESec, sim.StatusCanceled)
		if p.compression {
			p.compress(now)
		}
		return rec.g
	}
	if g, ok := p.paused[gridletID]; ok && g.UserID == userID {
		delete(p.paused, gridletID)
		_ = g.Finalize(now, p.char.CostPerPESec, sim.StatusCanceled)
		return g
	}
	return nil
}

func (p *Conservative) Pause(gridletID, userID int) bool {
	rec, ok := p.jobs[gridletID]
	if !ok || rec.g.UserID != userID || !rec.started {
		return false
	}
	now := p.host.Clock()
	rec.g.AccrueExec(now, p.char.MIPSPerPE)
	if err := rec.g.SetStatus(sim.StatusPaused); err != nil {
		return false
	}
	p.releaseJob(rec, now)
	p.remove(gridletID)
	p.paused[gridletID] = rec.g
	if p.compression {
		p.compress(now)
	}
	return true
}

func (p *Conservative) Resume(gridletID, userID int) bool {
	g, ok := p.paused[gridletID]
	if !ok || g.UserID != userID {
		return false
	}
	delete(p.paused, gridletID)
	now := p.host.Clock()
	p.profile.AdvanceTo(now)
	p.admit(g, now)
	return true
}

func (p *Conservative) Move(gridletID, userID int) *sim.Gridlet {
	now := p.host.Clock()
	rec, ok := p.jobs[gridletID]
	if !ok || rec.g.UserID != userID {
		if g, ok := p.paused[gridletID]; ok && g.UserID == userID {
			delete(p.paused, gridletID)
			return g
		}
		return nil
	}
	if rec.started {
		rec.g.AccrueExec(now, p.char.MIPSPerPE)
		_ = rec.g.SetStatus(sim.StatusPaused)
	}
	p.releaseJob(rec, now)
	p.remove(gridletID)
	if p.compression {
		p.compress(now)
	}
	return rec.g
}

func (p *Conservative) Status(gridletID, userID int) sim.GridletStatus {
	if rec, ok := p.jobs[gridletID]; ok && rec.g.UserID == userID {
		return rec.g.Status
	}
	if g, ok := p.paused[gridletID]; ok && g.UserID == userID {
		return g.Status
	}
	return ""
}

// releaseJob frees the unexpired portion of a job's window.
func (p *Conservative) releaseJob(rec *scheduled, now float64) {
	from := rec.start
	if rec.started && now > from {
		from = now
	}
	if from < rec.finish {
		p.profile.Release(from, rec.finish, rec.ranges)
	}
}

func (p *Conservative) remove(gridletID int) {
	delete(p.jobs, gridletID)
	for i, id := range p.order {
		if id == gridletID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// compress re-seats every not-yet-started job at its earliest feasible
// start, in admission order. Starts only ever move earlier: each job's old
// window is released before re-seeking, so the previous position remains
// feasible as a fallback.
func (p *Conservative) compress(now float64) {
	p.profile.AdvanceTo(now)
	for _, id := range append([]int(nil), p.order...) {
		rec := p.jobs[id]
		if rec == nil || rec.started {
			continue
		}
		runtime := rec.finish - rec.start
		p.profile.Release(rec.start, rec.finish, rec.ranges)
		start, ranges, ok := p.profile.FindStartTime(runtime, rec.g.NumPE, now)
		if !ok || start > rec.start {
			// keep the original window
			p.profile.Allocate(rec.start, rec.finish, rec.ranges)
			continue
		}
		p.profile.Allocate(start, start+runtime, ranges)
		p.epoch++
		rec.ranges = ranges
		rec.start = start
		rec.finish = start + runtime
		rec.epoch = p.epoch
		p.host.ScheduleInternal(start-now, startEvent{gridletID: id, epoch: rec.epoch})
	}
}
