package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/gridlab/gridsim/sim"
	"github.com/gridlab/gridsim/sim/availability"
)

// Selective implements selective backfilling. Jobs are bucketed into
// runtime categories, each tracking an exponentially-weighted expansion
// factor XF = (wait + runtime) / runtime of its completed jobs. An arrival
// whose predicted XF stays at or below the category threshold joins the
// plain backfill queue; one that would exceed it is promoted to a firm
// profile reservation, bounding per-category slowdown. Waiting jobs whose
// observed XF later crosses the threshold are promoted as well.
type Selective struct {
	host    Host
	char    sim.ResourceCharacteristics
	profile *availability.Profile

	waiting  []*selJob
	promoted map[int]*scheduled
	running  map[int]*scheduled

	cats   []*category
	bounds []float64 // runtime upper bound per category; beyond the last everything falls in one bucket
	weight float64
	floor  float64
	epoch  uint64
}

type selJob struct {
	g       *sim.Gridlet
	runtime float64
	cat     int
}

type category struct {
	xf     float64
	seeded bool
}

func NewSelective(opts Options) *Selective {
	weight := opts.XFWeight
	if weight <= 0 {
		weight = 0.2
	}
	floor := opts.XFFloor
	if floor <= 0 {
		floor = 1.0
	}
	bounds := opts.CategoryBounds
	if len(bounds) == 0 {
		bounds = []float64{100, 1000, 10000}
	}
	cats := make([]*category, len(bounds)+1)
	for i := range cats {
		cats[i] = &category{}
	}
	return &Selective{
		promoted: make(map[int]*scheduled),
		running:  make(map[int]*scheduled),
		cats:     cats,
		bounds:   bounds,
		weight:   weight,
		floor:    floor,
	}
}

func (p *Selective) Name() string { return NameSelective }

func (p *Selective) Attach(host Host, char sim.ResourceCharacteristics) {
	p.host = host
	p.char = char
	p.profile = availability.NewProfile(char.TotalPE())
}

func (p *Selective) categoryOf(runtime float64) int {
	for i, b := range p.bounds {
		if runtime < b {
			return i
		}
	}
	return len(p.bounds)
}

// threshold is the category's admission XF, never below the floor.
func (p *Selective) threshold(cat int) float64 {
	c := p.cats[cat]
	if !c.seeded || c.xf < p.floor {
		return p.floor
	}
	return c.xf
}

func (p *Selective) Submit(g *sim.Gridlet, ackWanted bool) {
	if rejectOversized(p.host, g, p.profile.TotalPE()) {
		return
	}
	if err := g.SetStatus(sim.StatusQueued); err != nil {
		logrus.Warnf("selective: %v", err)
	}
	if ackWanted {
		p.host.Ack(g, true)
	}
	now := p.host.Clock()
	p.profile.AdvanceTo(now)

	runtime := p.char.ExecTime(g.RemainingLength())
	job := &selJob{g: g, runtime: runtime, cat: p.categoryOf(runtime)}

	// predicted XF at the earliest feasible start decides admission
	start, _, ok := p.profile.FindStartTime(runtime, g.NumPE, now)
	if !ok {
		_ = g.SetStatus(sim.StatusFailed)
		p.host.ReturnGridlet(g)
		return
	}
	predXF := (start - now + runtime) / runtime
	if predXF > p.threshold(job.cat) {
		p.promote(job, now)
	} else {
		p.waiting = append(p.waiting, job)
	}
	p.schedulePass()
}

// promote gives the job a firm reservation at its earliest feasible start.
func (p *Selective) promote(job *selJob, now float64) {
	start, ranges, ok := p.profile.FindStartTime(job.runtime, job.g.NumPE, now)
	if !ok {
		_ = job.g.SetStatus(sim.StatusFailed)
		p.host.ReturnGridlet(job.g)
		return
	}
	p.epoch++
	rec := &scheduled{g: job.g, ranges: ranges, start: start, finish: start + job.runtime, epoch: p.epoch}
	p.profile.Allocate(start, rec.finish, ranges)
	p.promoted[job.g.ID] = rec
	p.host.ScheduleInternal(start-now, startEvent{gridletID: job.g.ID, epoch: rec.epoch})
	logrus.Debugf("selective: [%.2f] promoted gridlet %d to reservation @ %.2f", now, job.g.ID, start)
}

// schedulePass promotes starving jobs, then backfills the rest FIFO.
func (p *Selective) schedulePass() {
	now := p.host.Clock()
	p.profile.AdvanceTo(now)

	kept := p.waiting[:0]
	for _, job := range p.waiting {
		observedXF := (now - job.g.SubmitTime + job.runtime) / job.runtime
		if observedXF > p.threshold(job.cat) {
			p.promote(job, now)
			continue
		}
		kept = append(kept, job)
	}
	p.waiting = kept

	i := 0
	for i < len(p.waiting) {
		job := p.waiting[i]
		ranges := p.profile.CheckAvailability(now, job.runtime, job.g.NumPE)
		if ranges == nil {
			i++
			continue
		}
		p.waiting = append(p.waiting[:i], p.waiting[i+1:]...)
		p.startJob(job.g, ranges, now, job.runtime)
	}
}

func (p *Selective) startJob(g *sim.Gridlet, ranges availability.RangeList, now, runtime float64) {
	if err := g.BeginExec(now); err != nil {
		logrus.Warnf("selective: %v", err)
		return
	}
	p.epoch++
	rec := &scheduled{g: g, ranges: ranges, start: now, finish: now + runtime, started: true, epoch: p.epoch}
	p.profile.Allocate(now, rec.finish, ranges)
	p.running[g.ID] = rec
	p.host.ScheduleInternal(runtime, finishEvent{gridletID: g.ID, epoch: rec.epoch})
}

func (p *Selective) HandleInternal(data any) {
	switch ev := data.(type) {
	case startEvent:
		rec := p.promoted[ev.gridletID]
		if rec == nil || rec.epoch != ev.epoch {
			return
		}
		delete(p.promoted, ev.gridletID)
		now := p.host.Clock()
		if err := rec.g.BeginExec(now); err != nil {
			logrus.Warnf("selective: %v", err)
			return
		}
		rec.started = true
		p.running[rec.g.ID] = rec
		p.host.ScheduleInternal(rec.finish-now, finishEvent{gridletID: rec.g.ID, epoch: rec.epoch})
	case finishEvent:
		rec := p.running[ev.gridletID]
		if rec == nil || rec.epoch != ev.epoch {
			return
		}
		now := p.host.Clock()
		rec.g.AccrueExec(now, p.char.MIPSPerPE)
		delete(p.running, ev.gridletID)
		p.observeCompletion(rec)
		if err := rec.g.Finalize(now, p.char.CostPerPESec, sim.StatusSuccess); err != nil {
			logrus.Warnf("selective: %v", err)
		}
		p.host.ReturnGridlet(rec.g)
		p.schedulePass()
	}
}

// observeCompletion folds a finished job's expansion factor into its
// category's EWMA.
func (p *Selective) observeCompletion(rec *scheduled) {
	runtime := rec.finish - rec.start
	if runtime <= 0 {
		return
	}
	wait := rec.start - rec.g.SubmitTime
	if wait < 0 {
		wait = 0
	}
	xf := (wait + runtime) / runtime
	c := p.cats[p.categoryOf(runtime)]
	if !c.seeded {
		c.xf = xf
		c.seeded = true
		return
	}
	c.xf = (1-p.weight)*c.xf + p.weight*xf
}

func (p *Selective) Cancel(gridletID, userID int) *sim.Gridlet {
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
	if rec, ok := p.promoted[gridletID]; ok && rec.g.UserID == userID {
		p.profile.Release(rec.start, rec.finish, rec.ranges)
		delete(p.promoted, gridletID)
		_ = rec.g.Finalize(now, 0, sim.StatusCanceled)
		p.schedulePass()
		return rec.g
	}
	for i, job := range p.waiting {
		if job.g.ID == gridletID && job.g.UserID == userID {
			p.waiting = append(p.waiting[:i], p.waiting[i+1:]...)
			_ = job.g.Finalize(now, 0, sim.StatusCanceled)
			p.schedulePass()
			return job.g
		}
	}
	return nil
}

func (p *Selective) Pause(gridletID, userID int) bool {
	// pausing a selective-backfill job forfeits its slot; it re-enters as a
	// fresh arrival on resume
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
	runtime := p.char.ExecTime(rec.g.RemainingLength())
	p.waiting = append(p.waiting, &selJob{g: rec.g, runtime: runtime, cat: p.categoryOf(runtime)})
	p.schedulePass()
	return true
}

func (p *Selective) Resume(gridletID, userID int) bool {
	for _, job := range p.waiting {
		if job.g.ID == gridletID && job.g.UserID == userID && job.g.Status == sim.StatusPaused {
			p.schedulePass()
			return true
		}
	}
	return false
}

func (p *Selective) Move(gridletID, userID int) *sim.Gridlet {
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
	if rec, ok := p.promoted[gridletID]; ok && rec.g.UserID == userID {
		p.profile.Release(rec.start, rec.finish, rec.ranges)
		delete(p.promoted, gridletID)
		p.schedulePass()
		return rec.g
	}
	for i, job := range p.waiting {
		if job.g.ID == gridletID && job.g.UserID == userID {
			p.waiting = append(p.waiting[:i], p.waiting[i+1:]...)
			return job.g
		}
	}
	return nil
}

func (p *Selective) Status(gridletID, userID int) sim.GridletStatus {
	if rec, ok := p.running[gridletID]; ok && rec.g.UserID == userID {
		return rec.g.Status
	}
	if rec, ok := p.promoted[gridletID]; ok && rec.g.UserID == userID {
		return rec.g.Status
	}
	for _, job := range p.waiting {
		if job.g.ID == gridletID && job.g.UserID == userID {
			return job.g.Status
		}
	}
	return ""
}
