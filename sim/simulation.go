package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Simulation is the discrete-event kernel: the future-event queue, the
// entity registry, and the virtual clock. It is an explicit value, so
// multiple simulations can coexist in one process.
//
// Entities run cooperatively: each Body executes on its own goroutine, but
// the kernel resumes exactly one at a time and waits for it to suspend
// before touching the queue again. Observable behavior therefore equals a
// single-threaded interleaving.
type Simulation struct {
	clock float64
	seq   uint64
	queue *eventQueue

	runners []*entityRunner
	byName  map[string]int

	started  bool
	draining bool
	strict   bool

	rng *PartitionedRNG
}

// NewSimulation creates an empty simulation whose randomness derives from
// masterSeed.
func NewSimulation(masterSeed int64) *Simulation {
	return &Simulation{
		queue:  newEventQueue(),
		byName: make(map[string]int),
		rng:    NewPartitionedRNG(masterSeed),
	}
}

// SetStrict toggles strict mode: kernel invariant violations (time
// regression, past-event scheduling) panic instead of being logged and
// ignored.
func (s *Simulation) SetStrict(strict bool) { s.strict = strict }

// Clock returns the current virtual time in seconds.
func (s *Simulation) Clock() float64 { return s.clock }

// RNG returns the simulation's partitioned random source.
func (s *Simulation) RNG() *PartitionedRNG { return s.rng }

// Register adds an entity and returns its id. Ids start at 1; 0 means
// "unknown entity". Registration order fixes the order in which bodies
// start at time zero.
func (s *Simulation) Register(ent Entity) (int, error) {
	if s.started {
		return 0, fmt.Errorf("cannot register %q: simulation already started", ent.Name())
	}
	name := ent.Name()
	if _, dup := s.byName[name]; dup {
		return 0, fmt.Errorf("duplicate entity name %q", name)
	}
	r := &entityRunner{
		id:      len(s.runners) + 1,
		name:    name,
		ent:     ent,
		resume:  make(chan struct{}),
		yielded: make(chan struct{}),
	}
	r.env = &Env{sim: s, runner: r}
	s.runners = append(s.runners, r)
	s.byName[name] = r.id
	return r.id, nil
}

// EntityID resolves a name, or 0 when unknown.
func (s *Simulation) EntityID(name string) int { return s.byName[name] }

func (s *Simulation) nameOf(id int) string {
	if id < 1 || id > len(s.runners) {
		return ""
	}
	return s.runners[id-1].name
}

func (s *Simulation) runnerByID(id int) *entityRunner {
	if id < 1 || id > len(s.runners) {
		return nil
	}
	return s.runners[id-1]
}

func (s *Simulation) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// send schedules a message. Unknown destinations are warned about and
// dropped; negative delays are a kernel violation.
func (s *Simulation) send(src, dst int, delay float64, tag Tag, data any) {
	if s.draining {
		return
	}
	if delay < 0 {
		if s.strict {
			panic(fmt.Sprintf("sim: event scheduled in the past (delay %f, tag %s)", delay, tag))
		}
		logrus.Errorf("sim: dropping past-scheduled event (delay %f, tag %s)", delay, tag)
		return
	}
	if s.runnerByID(dst) == nil {
		logrus.Warnf("sim: send to unknown entity id %d (tag %s), dropped", dst, tag)
		return
	}
	msg := &Message{Tag: tag, Src: src, Dst: dst, Data: data, SendTime: s.clock}
	s.queue.schedule(&futureEvent{time: s.clock + delay, seq: s.nextSeq(), kind: evMessage, msg: msg})
}

// endSimulation purges events after now and broadcasts END_OF_SIMULATION.
func (s *Simulation) endSimulation(src int) {
	s.queue.purgeAfter(s.clock)
	for _, r := range s.runners {
		if r.state == stateFinished {
			continue
		}
		msg := &Message{Tag: TagEndOfSimulation, Src: src, Dst: r.id, SendTime: s.clock}
		s.queue.schedule(&futureEvent{time: s.clock, seq: s.nextSeq(), kind: evMessage, msg: msg})
	}
}

// Run starts every entity body and processes events until the queue drains,
// then force-terminates any entity still blocked. The clock never moves
// backwards across deliveries.
func (s *Simulation) Run() error {
	if s.started {
		return fmt.Errorf("simulation already ran")
	}
	s.started = true

	for _, r := range s.runners {
		s.launch(r)
	}
	// bodies start at time zero in registration order
	for _, r := range s.runners {
		s.resumeRunner(r)
	}

	for {
		ev := s.queue.popNext()
		if ev == nil {
			break
		}
		if ev.time < s.clock {
			if s.strict {
				panic(fmt.Sprintf("sim: clock regression: event at %f, clock %f", ev.time, s.clock))
			}
			logrus.Errorf("sim: ignoring event at %f behind clock %f", ev.time, s.clock)
			continue
		}
		s.clock = ev.time

		switch ev.kind {
		case evWake:
			r := s.runnerByID(ev.dst)
			if r == nil || r.state != stateHolding || r.holdSeq != ev.wakeSeq {
				continue // stale wake
			}
			s.resumeRunner(r)
		case evMessage:
			r := s.runnerByID(ev.msg.Dst)
			if r == nil || r.state == stateFinished {
				logrus.Debugf("sim: dropping %s for finished/unknown entity %d", ev.msg.Tag, ev.msg.Dst)
				continue
			}
			ev.msg.DeliverTime = s.clock
			r.mailbox = append(r.mailbox, ev.msg)
			logrus.Debugf("sim: [%.4f] deliver %s %s -> %s", s.clock, ev.msg.Tag, s.nameOf(ev.msg.Src), r.name)
			if r.state == stateWaiting && (r.waitPred == nil || r.waitPred(ev.msg)) {
				s.resumeRunner(r)
			}
		}
	}

	s.drain()
	logrus.Infof("sim: simulation ended at %.4f", s.clock)
	return nil
}

// drain force-finishes entities still alive after the queue empties. Each
// gets one synthesized END_OF_SIMULATION from its next Receive; an entity
// that blocks again is unwound via killSignal.
func (s *Simulation) drain() {
	s.draining = true
	for _, r := range s.runners {
		for r.state != stateFinished {
			s.resumeRunner(r)
		}
	}
}

// launch starts the entity goroutine. It blocks until the first resume, and
// hands control back to the kernel when the body returns or is unwound.
func (s *Simulation) launch(r *entityRunner) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				if _, ok := p.(killSignal); !ok {
					panic(p)
				}
			}
			r.state = stateFinished
			r.yielded <- struct{}{}
		}()
		<-r.resume
		r.ent.Body(r.env)
	}()
}

// resumeRunner transfers control to the entity and blocks until it suspends
// again. This is the only place entity code runs.
func (s *Simulation) resumeRunner(r *entityRunner) {
	r.state = stateRunnable
	r.resume <- struct{}{}
	<-r.yielded
}
