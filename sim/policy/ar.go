package policy

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/gridlab/gridsim/sim"
	"github.com/gridlab/gridsim/sim/availability"
)

// arStartEvent and arGridletFinish are internal payloads private to the
// advance-reservation policy; they never collide with the embedded
// conservative scheduler's events.
type arStartEvent struct {
	reservationID int
}

type arGridletFinish struct {
	gridletID int
}

// ARConservative layers advance reservations on conservative backfilling.
// Reservations occupy the profile ahead of any best-effort job; best-effort
// arrivals conservative-backfill into the gaps between them.
type ARConservative struct {
	Conservative

	reservations map[int]*Reservation
	arJobs       map[int]*scheduled // gridlets executing inside reservations
	nextResID    int
	expiryWindow float64
}

func NewARConservative(opts Options) *ARConservative {
	expiry := opts.ReservationExpiry
	if expiry <= 0 {
		expiry = 3600
	}
	return &ARConservative{
		Conservative: *NewConservative(opts.Compression),
		reservations: make(map[int]*Reservation),
		arJobs:       make(map[int]*scheduled),
		expiryWindow: expiry,
	}
}

func (p *ARConservative) Name() string { return NameARConservative }

// Submit places best-effort gridlets through the conservative scheduler and
// reservation-bound gridlets inside their reserved window.
func (p *ARConservative) Submit(g *sim.Gridlet, ackWanted bool) {
	if g.ReservationID == 0 {
		p.Conservative.Submit(g, ackWanted)
		return
	}
	res, ok := p.reservations[g.ReservationID]
	now := p.host.Clock()
	if !ok || (res.Status != ResCommitted && res.Status != ResInProgress) {
		logrus.Warnf("ar-conservative: gridlet %d names unusable reservation %d", g.ID, g.ReservationID)
		_ = g.SetStatus(sim.StatusFailed)
		p.host.Ack(g, false)
		p.host.ReturnGridlet(g)
		return
	}
	runtime := p.char.ExecTime(g.RemainingLength())
	start := res.StartTime
	if now > start {
		start = now
	}
	if g.NumPE > res.NumPE || start+runtime > res.Finish() {
		_ = g.SetStatus(sim.StatusFailed)
		p.host.Ack(g, false)
		p.host.ReturnGridlet(g)
		return
	}
	if err := g.SetStatus(sim.StatusQueued); err != nil {
		logrus.Warnf("ar-conservative: %v", err)
	}
	if ackWanted {
		p.host.Ack(g, true)
	}
	// the reservation's allocation already covers the window; the gridlet
	// runs on the reserved ranges without further profile mutation
	rec := &scheduled{g: g, ranges: res.Ranges.First(g.NumPE), start: start, finish: start + runtime}
	p.arJobs[g.ID] = rec
	if start <= now {
		p.beginARJob(rec, now)
	} else {
		p.host.ScheduleInternal(start-now, arStartEvent{reservationID: res.ID})
	}
}

func (p *ARConservative) beginARJob(rec *scheduled, now float64) {
	if err := rec.g.BeginExec(now); err != nil {
		logrus.Warnf("ar-conservative: %v", err)
		return
	}
	rec.started = true
	p.host.ScheduleInternal(rec.finish-now, arGridletFinish{gridletID: rec.g.ID})
}

func (p *ARConservative) HandleInternal(data any) {
	switch ev := data.(type) {
	case expiryEvent:
		res := p.reservations[ev.reservationID]
		if res == nil || res.Status != ResAccepted {
			return
		}
		// uncommitted past its window: release the hold
		p.profile.Release(res.StartTime, res.Finish(), res.Ranges)
		res.Status = ResCanceled
		logrus.Debugf("ar-conservative: reservation %d expired", res.ID)
	case arStartEvent:
		res := p.reservations[ev.reservationID]
		now := p.host.Clock()
		if res != nil && res.Status == ResCommitted && now >= res.StartTime {
			res.Status = ResInProgress
		}
		for _, rec := range p.arJobRecords(ev.reservationID) {
			if !rec.started && rec.start <= now {
				p.beginARJob(rec, now)
			}
		}
	case arGridletFinish:
		rec := p.arJobs[ev.gridletID]
		if rec == nil || !rec.started {
			return
		}
		now := p.host.Clock()
		rec.g.AccrueExec(now, p.char.MIPSPerPE)
		delete(p.arJobs, ev.gridletID)
		if err := rec.g.Finalize(now, p.char.CostPerPESec, sim.StatusSuccess); err != nil {
			logrus.Warnf("ar-conservative: %v", err)
		}
		p.host.ReturnGridlet(rec.g)
	default:
		p.Conservative.HandleInternal(data)
	}
}

// arJobRecords returns the scheduled gridlets bound to a reservation, in
// gridlet-id order for determinism.
func (p *ARConservative) arJobRecords(reservationID int) []*scheduled {
	ids := make([]int, 0, len(p.arJobs))
	for id, rec := range p.arJobs {
		if rec.g.ReservationID == reservationID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]*scheduled, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.arJobs[id])
	}
	return out
}

// CreateReservation implements ReservationPolicy.
func (p *ARConservative) CreateReservation(owner int, start, duration float64, numPE int) ReservationResult {
	now := p.host.Clock()
	p.profile.AdvanceTo(now)
	if numPE <= 0 || duration <= 0 || start < now {
		return ReservationResult{Code: ErrOperationFailure}
	}
	if numPE > p.profile.TotalPE() {
		return ReservationResult{Code: ErrOperationFailure}
	}
	ranges := p.profile.CheckAvailability(start, duration, numPE)
	if ranges == nil {
		return ReservationResult{Code: ErrConflict}
	}
	p.nextResID++
	res := &Reservation{
		ID:             p.nextResID,
		Owner:          owner,
		StartTime:      start,
		Duration:       duration,
		NumPE:          numPE,
		SubmissionTime: now,
		ExpiryTime:     now + p.expiryWindow,
		Ranges:         ranges,
		Status:         ResAccepted,
	}
	p.profile.Allocate(start, start+duration, ranges)
	p.reservations[res.ID] = res
	p.host.ScheduleInternal(p.expiryWindow, expiryEvent{reservationID: res.ID})
	logrus.Debugf("ar-conservative: [%.2f] reservation %d accepted %v @ [%.2f,%.2f)", now, res.ID, ranges, start, start+duration)
	return ReservationResult{Reservation: res}
}

// CommitReservation implements ReservationPolicy. Committing cancels the
// expiry timer (the timer checks status when it fires).
func (p *ARConservative) CommitReservation(id int) ReservationResult {
	res, ok := p.reservations[id]
	if !ok {
		return ReservationResult{Code: ErrInvalidID}
	}
	switch res.Status {
	case ResAccepted:
		res.Status = ResCommitted
		p.host.ScheduleInternal(res.StartTime-p.host.Clock(), arStartEvent{reservationID: id})
		return ReservationResult{Reservation: res}
	case ResCommitted, ResInProgress:
		return ReservationResult{Reservation: res}
	case ResCanceled:
		return ReservationResult{Code: ErrExpired}
	default:
		return ReservationResult{Code: ErrOperationFailure}
	}
}

// CancelReservation implements ReservationPolicy.
func (p *ARConservative) CancelReservation(id int) ReservationResult {
	res, ok := p.reservations[id]
	if !ok {
		return ReservationResult{Code: ErrInvalidID}
	}
	now := p.host.Clock()
	switch res.Status {
	case ResAccepted, ResCommitted:
		p.profile.Release(res.StartTime, res.Finish(), res.Ranges)
	case ResInProgress:
		if now < res.Finish() {
			p.profile.Release(now, res.Finish(), res.Ranges)
		}
	default:
		return ReservationResult{Code: ErrOperationFailure}
	}
	res.Status = ResCanceled
	if p.compression {
		p.compress(now)
	}
	return ReservationResult{Reservation: res}
}

// ModifyReservation tentatively cancels and re-creates; on failure the
// original allocation is restored exactly.
func (p *ARConservative) ModifyReservation(id int, start, duration float64, numPE int) ReservationResult {
	res, ok := p.reservations[id]
	if !ok {
		return ReservationResult{Code: ErrInvalidID}
	}
	if res.Status != ResAccepted && res.Status != ResCommitted {
		return ReservationResult{Code: ErrOperationFailure}
	}
	now := p.host.Clock()
	p.profile.AdvanceTo(now)
	if numPE <= 0 || duration <= 0 || start < now || numPE > p.profile.TotalPE() {
		return ReservationResult{Code: ErrOperationFailure}
	}

	oldStart, oldFinish, oldRanges := res.StartTime, res.Finish(), res.Ranges
	p.profile.Release(oldStart, oldFinish, oldRanges)
	ranges := p.profile.CheckAvailability(start, duration, numPE)
	if ranges == nil {
		p.profile.Allocate(oldStart, oldFinish, oldRanges)
		return ReservationResult{Code: ErrConflict}
	}
	p.profile.Allocate(start, start+duration, ranges)
	res.StartTime = start
	res.Duration = duration
	res.NumPE = numPE
	res.Ranges = ranges
	if res.Status == ResCommitted {
		p.host.ScheduleInternal(start-now, arStartEvent{reservationID: res.ID})
	}
	return ReservationResult{Reservation: res}
}

// QueryReservation implements ReservationPolicy.
func (p *ARConservative) QueryReservation(id int) ReservationResult {
	res, ok := p.reservations[id]
	if !ok {
		return ReservationResult{Code: ErrInvalidID}
	}
	return ReservationResult{Reservation: res}
}

// ListFreeTime implements ReservationPolicy.
func (p *ARConservative) ListFreeTime(from, to float64) []availability.Slot {
	return p.profile.TimeSlots(from, to)
}
