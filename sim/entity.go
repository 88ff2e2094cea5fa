package sim

import "math/rand"

// Entity is a named logical process driven by the kernel. Body runs as a
// coroutine: it may suspend only at Env's blocking calls (Hold, Pause,
// Receive, ReceiveMatching) or by returning. Between suspension points no
// other entity observes intermediate state.
type Entity interface {
	Name() string
	Body(env *Env)
}

type runnerState int

const (
	stateRunnable runnerState = iota
	stateHolding
	stateWaiting
	stateFinished
)

// killSignal unwinds an entity goroutine that blocks after the simulation
// has started draining.
type killSignal struct{}

// entityRunner is the kernel-side record for one registered entity.
type entityRunner struct {
	id   int
	name string
	ent  Entity
	env  *Env

	state    runnerState
	mailbox  []*Message
	waitPred func(*Message) bool
	holdSeq  uint64

	endDelivered bool

	resume  chan struct{}
	yielded chan struct{}
}

// takeMatching removes and returns the first mailbox message satisfying
// pred (nil matches anything). Non-matching messages keep their order.
func (r *entityRunner) takeMatching(pred func(*Message) bool) *Message {
	for i, m := range r.mailbox {
		if pred == nil || pred(m) {
			r.mailbox = append(r.mailbox[:i], r.mailbox[i+1:]...)
			return m
		}
	}
	return nil
}

// Env is the per-entity view of the kernel: clock access, messaging, and the
// suspension points. All methods must be called from the entity's own Body.
type Env struct {
	sim    *Simulation
	runner *entityRunner
}

// Clock returns the current virtual time in seconds.
func (e *Env) Clock() float64 { return e.sim.clock }

// ID returns this entity's id.
func (e *Env) ID() int { return e.runner.id }

// EntityName returns this entity's registered name.
func (e *Env) EntityName() string { return e.runner.name }

// Lookup resolves an entity name to its id, or 0 when unknown.
func (e *Env) Lookup(name string) int { return e.sim.byName[name] }

// NameOf resolves an entity id to its name, or "" when unknown.
func (e *Env) NameOf(id int) string { return e.sim.nameOf(id) }

// Send schedules a message to the named entity after delay seconds.
func (e *Env) Send(dst string, delay float64, tag Tag, data any) {
	e.sim.send(e.runner.id, e.sim.byName[dst], delay, tag, data)
}

// SendByID schedules a message to an entity id after delay seconds.
func (e *Env) SendByID(dst int, delay float64, tag Tag, data any) {
	e.sim.send(e.runner.id, dst, delay, tag, data)
}

// Hold suspends the entity for d seconds of virtual time.
func (e *Env) Hold(d float64) {
	s := e.sim
	if s.draining {
		panic(killSignal{})
	}
	if d < 0 {
		d = 0
	}
	r := e.runner
	seq := s.nextSeq()
	r.holdSeq = seq
	s.queue.schedule(&futureEvent{time: s.clock + d, seq: seq, kind: evWake, dst: r.id, wakeSeq: seq})
	r.state = stateHolding
	e.yield()
}

// Pause suspends like Hold; kept as a distinct name for bodies that model a
// processing pause rather than a timed wait.
func (e *Env) Pause(d float64) { e.Hold(d) }

// Receive blocks until any message arrives and returns it.
func (e *Env) Receive() *Message { return e.ReceiveMatching(nil) }

// ReceiveMatching blocks until a message satisfying pred is present in the
// mailbox and returns it. Matching is FIFO; non-matching messages are
// preserved in arrival order. During shutdown a synthesized
// END_OF_SIMULATION message is returned so bodies can unwind.
func (e *Env) ReceiveMatching(pred func(*Message) bool) *Message {
	r := e.runner
	for {
		if msg := r.takeMatching(pred); msg != nil {
			return msg
		}
		if e.sim.draining {
			if r.endDelivered {
				panic(killSignal{})
			}
			r.endDelivered = true
			return &Message{Tag: TagEndOfSimulation, Dst: r.id, SendTime: e.sim.clock, DeliverTime: e.sim.clock}
		}
		r.waitPred = pred
		r.state = stateWaiting
		e.yield()
		r.waitPred = nil
	}
}

// ReceiveTagged is ReceiveMatching restricted to a tag set.
func (e *Env) ReceiveTagged(tags ...Tag) *Message {
	return e.ReceiveMatching(func(m *Message) bool {
		for _, t := range tags {
			if m.Tag == t {
				return true
			}
		}
		return false
	})
}

// TryReceive returns the first matching mailbox message without blocking,
// or nil when none is present. pred may be nil.
func (e *Env) TryReceive(pred func(*Message) bool) *Message {
	return e.runner.takeMatching(pred)
}

// Rand returns the simulation's deterministic RNG stream for a subsystem.
func (e *Env) Rand(subsystem string) *rand.Rand {
	return e.sim.rng.ForSubsystem(subsystem)
}

// EndSimulation purges every event scheduled after the current time and
// broadcasts END_OF_SIMULATION to all entities.
func (e *Env) EndSimulation() {
	e.sim.endSimulation(e.runner.id)
}

// yield hands control back to the kernel and blocks until resumed.
func (e *Env) yield() {
	r := e.runner
	r.yielded <- struct{}{}
	<-r.resume
}
