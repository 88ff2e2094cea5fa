package policy

import (
	"github.com/sirupsen/logrus"

	"github.com/gridlab/gridsim/sim"
	"github.com/gridlab/gridsim/sim/availability"
)

// Partitioned splits the PE pool into fixed subsets, each owning an
// independent aggressive-backfilling scheduler over its own availability
// profile. Arrivals are routed by partition predicate; with borrowing
// enabled, a gridlet whose home partition is busy may start in a foreign
// partition that has immediate room.
type Partitioned struct {
	host  Host
	char  sim.ResourceCharacteristics
	parts []*partition

	borrowing bool
	specs     []PartitionSpec
}

type partition struct {
	policy *Aggressive
	pred   Predicate
	pes    availability.RangeList
}

// partitionEvent routes an internal payload to the owning partition.
type partitionEvent struct {
	idx   int
	inner any
}

// partitionHost rewraps ScheduleInternal so sub-policy events come back to
// the right partition.
type partitionHost struct {
	Host
	owner *Partitioned
	idx   int
}

func (h *partitionHost) ScheduleInternal(delay float64, data any) {
	h.Host.ScheduleInternal(delay, partitionEvent{idx: h.idx, inner: data})
}

func NewPartitioned(specs []PartitionSpec, borrowing bool) *Partitioned {
	return &Partitioned{specs: specs, borrowing: borrowing}
}

func (p *Partitioned) Name() string { return NamePartitioned }

func (p *Partitioned) Attach(host Host, char sim.ResourceCharacteristics) {
	p.host = host
	p.char = char
	offset := 0
	for i, spec := range p.specs {
		hi := offset + spec.NumPE - 1
		if hi >= char.TotalPE() {
			hi = char.TotalPE() - 1
		}
		pes := availability.NewRangeList(offset, hi)
		sub := NewAggressive()
		sub.AttachRestricted(&partitionHost{Host: host, owner: p, idx: i}, char, pes)
		p.parts = append(p.parts, &partition{policy: sub, pred: spec.Predicate, pes: pes})
		offset = hi + 1
	}
}

func (p *Partitioned) Submit(g *sim.Gridlet, ackWanted bool) {
	runtime := p.char.ExecTime(g.RemainingLength())
	home := -1
	for i, part := range p.parts {
		if part.pred == nil || part.pred.Match(runtime) {
			home = i
			break
		}
	}
	if home < 0 {
		logrus.Warnf("partitioned: no partition accepts gridlet %d (runtime %.2f)", g.ID, runtime)
		_ = g.SetStatus(sim.StatusFailed)
		p.host.Ack(g, false)
		p.host.ReturnGridlet(g)
		return
	}
	if p.borrowing && !p.parts[home].policy.CanStartNow(g) {
		for i, part := range p.parts {
			if i != home && part.policy.CanStartNow(g) {
				part.policy.Submit(g, ackWanted)
				return
			}
		}
	}
	p.parts[home].policy.Submit(g, ackWanted)
}

func (p *Partitioned) HandleInternal(data any) {
	ev, ok := data.(partitionEvent)
	if !ok || ev.idx < 0 || ev.idx >= len(p.parts) {
		return
	}
	p.parts[ev.idx].policy.HandleInternal(ev.inner)
}

func (p *Partitioned) Cancel(gridletID, userID int) *sim.Gridlet {
	for _, part := range p.parts {
		if g := part.policy.Cancel(gridletID, userID); g != nil {
			return g
		}
	}
	return nil
}

func (p *Partitioned) Pause(gridletID, userID int) bool {
	for _, part := range p.parts {
		if part.policy.Pause(gridletID, userID) {
			return true
		}
	}
	return false
}

func (p *Partitioned) Resume(gridletID, userID int) bool {
	for _, part := range p.parts {
		if part.policy.Resume(gridletID, userID) {
			return true
		}
	}
	return false
}

func (p *Partitioned) Move(gridletID, userID int) *sim.Gridlet {
	for _, part := range p.parts {
		if g := part.policy.Move(gridletID, userID); g != nil {
			return g
		}
	}
	return nil
}

func (p *Partitioned) Status(gridletID, userID int) sim.GridletStatus {
	for _, part := range p.parts {
		if st := part.policy.Status(gridletID, userID); st != "" {
			return st
		}
	}
	return ""
}
