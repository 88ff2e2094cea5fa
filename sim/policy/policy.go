// Package policy implements the CPU allocation policies a resource can be
// composed with: space-shared, time-shared, the backfilling family, and
// advance-reservation scheduling.
//
// A policy never touches the kernel directly. It drives its resource through
// the Host interface (clock, self-scheduled internal events, gridlet
// return) and mutates its own availability profile; cross-entity effects
// happen only through the host.
package policy

import (
	"fmt"

	"github.com/gridlab/gridsim/sim"
	"github.com/gridlab/gridsim/sim/availability"
)

// Host is the resource-side surface a policy drives.
type Host interface {
	// Clock returns current virtual time.
	Clock() float64
	// ScheduleInternal delivers data back to HandleInternal after delay
	// seconds of virtual time.
	ScheduleInternal(delay float64, data any)
	// ReturnGridlet hands a finished (or rejected) gridlet back to its
	// owner entity.
	ReturnGridlet(g *sim.Gridlet)
	// Ack reports submission acceptance to the owner when requested.
	Ack(g *sim.Gridlet, accepted bool)
}

// AllocationPolicy is the contract every policy exposes to its resource.
type AllocationPolicy interface {
	Name() string
	// Attach binds the policy to its host and resource characteristics.
	// Called once, before any other method.
	Attach(host Host, char sim.ResourceCharacteristics)
	Submit(g *sim.Gridlet, ackWanted bool)
	Cancel(gridletID, userID int) *sim.Gridlet
	Pause(gridletID, userID int) bool
	Resume(gridletID, userID int) bool
	// Move removes the gridlet from this policy for migration elsewhere;
	// nil when unknown.
	Move(gridletID, userID int) *sim.Gridlet
	Status(gridletID, userID int) sim.GridletStatus
	// HandleInternal consumes a payload previously passed to
	// Host.ScheduleInternal.
	HandleInternal(data any)
}

// Options carries the policy-specific knobs; zero values select defaults.
type Options struct {
	// Compression enables the conservative re-compression pass after early
	// releases.
	Compression bool

	// Partitions configures the multi-partition policy.
	Partitions []PartitionSpec
	// Borrowing lets a partitioned policy place a gridlet in a foreign
	// partition with immediate room. Default off.
	Borrowing bool

	// XFWeight is the EWMA weight for selective backfilling expansion
	// factors (default 0.2); XFFloor is the lowest admission threshold
	// (default 1.0); CategoryBounds are runtime bucket upper bounds.
	XFWeight       float64
	XFFloor        float64
	CategoryBounds []float64

	// ReservationExpiry is the window an ACCEPTED reservation may remain
	// uncommitted (default 3600 s).
	ReservationExpiry float64
}

// PartitionSpec names one fixed PE partition and its routing predicate.
type PartitionSpec struct {
	NumPE     int
	Predicate Predicate
}

// Predicate routes a gridlet to a partition based on its estimated runtime.
type Predicate interface {
	Match(runtime float64) bool
}

// RuntimePredicate matches runtimes in [Min, Max); Max <= 0 means no upper
// bound.
type RuntimePredicate struct {
	Min float64
	Max float64
}

func (p RuntimePredicate) Match(runtime float64) bool {
	if runtime < p.Min {
		return false
	}
	return p.Max <= 0 || runtime < p.Max
}

// Valid policy names.
const (
	NameSpaceShared    = "space-shared"
	NameTimeShared     = "time-shared"
	NameConservative   = "conservative"
	NameAggressive     = "aggressive"
	NamePartitioned    = "partitioned"
	NameSelective      = "selective"
	NameARConservative = "ar-conservative"
)

// IsValid reports whether name is a recognized policy name.
func IsValid(name string) bool {
	switch name {
	case NameSpaceShared, NameTimeShared, NameConservative, NameAggressive,
		NamePartitioned, NameSelective, NameARConservative:
		return true
	}
	return false
}

// New creates an AllocationPolicy by name. Panics on unrecognized names;
// callers validate with IsValid first.
func New(name string, opts Options) AllocationPolicy {
	switch name {
	case NameSpaceShared:
		return NewSpaceShared()
	case NameTimeShared:
		return NewTimeShared()
	case NameConservative:
		return NewConservative(opts.Compression)
	case NameAggressive:
		return NewAggressive()
	case NamePartitioned:
		return NewPartitioned(opts.Partitions, opts.Borrowing)
	case NameSelective:
		return NewSelective(opts)
	case NameARConservative:
		return NewARConservative(opts)
	default:
		panic(fmt.Sprintf("unknown allocation policy %q", name))
	}
}

// scheduled is a gridlet placed on the profile: its PE ranges, partition,
// and expected execution window.
type scheduled struct {
	g         *sim.Gridlet
	ranges    availability.RangeList
	partition int
	start     float64
	finish    float64
	started   bool
	epoch     uint64
}

// finishEvent, startEvent and expiryEvent are the internal payloads policies
// schedule on their host.
type finishEvent struct {
	gridletID int
	epoch     uint64
}

type startEvent struct {
	gridletID int
	epoch     uint64
}

type expiryEvent struct {
	reservationID int
}

// rejectOversized fails gridlets whose demand exceeds the pool and returns
// them; true means the gridlet was rejected.
func rejectOversized(host Host, g *sim.Gridlet, totalPE int) bool {
	if g.NumPE <= totalPE {
		return false
	}
	_ = g.SetStatus(sim.StatusFailed)
	host.Ack(g, false)
	host.ReturnGridlet(g)
	return true
}
