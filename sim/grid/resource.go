package grid

import (
	"github.com/sirupsen/logrus"

	"github.com/gridlab/gridsim/sim"
	"github.com/gridlab/gridsim/sim/network"
	"github.com/gridlab/gridsim/sim/policy"
	"github.com/gridlab/gridsim/sim/trace"
)

// Resource is a simulated computing resource: static characteristics plus an
// injected allocation policy, an optional information-service binding, and
// optional statistics recording. Capabilities are composed, not inherited.
type Resource struct {
	name    string
	char    sim.ResourceCharacteristics
	pol     policy.AllocationPolicy
	gisName string

	networked bool
	recorder  *trace.Recorder
	env       *sim.Env
}

// NewResource creates a resource running the given policy. gisName may be
// empty for resources that are addressed directly.
func NewResource(name string, char sim.ResourceCharacteristics, pol policy.AllocationPolicy, gisName string) *Resource {
	return &Resource{name: name, char: char, pol: pol, gisName: gisName}
}

// SetRecorder enables per-entity statistics rows.
func (r *Resource) SetRecorder(rec *trace.Recorder) { r.recorder = rec }

// UseNetwork routes gridlet returns through the resource's IO port, sized
// by each gridlet's output size.
func (r *Resource) UseNetwork() { r.networked = true }

// Characteristics returns the static description.
func (r *Resource) Characteristics() sim.ResourceCharacteristics { return r.char }

func (r *Resource) Name() string { return r.name }

// resourceHost adapts the entity runtime to the policy.Host surface.
type resourceHost struct {
	r *Resource
}

func (h resourceHost) Clock() float64 { return h.r.env.Clock() }

func (h resourceHost) ScheduleInternal(delay float64, data any) {
	h.r.env.SendByID(h.r.env.ID(), delay, sim.TagInternal, data)
}

func (h resourceHost) ReturnGridlet(g *sim.Gridlet) {
	h.r.record(string(sim.TagGridletReturn), g)
	if g.Status == sim.StatusSuccess && h.r.recorder != nil {
		h.r.recorder.RecordFin(h.r.name, g.UserID, g.ID, h.r.name, g.Cost, g.ActualCPUTime, h.r.env.Clock())
	}
	env := h.r.env
	if h.r.networked {
		size := g.OutputSize
		if size <= 0 {
			size = 1
		}
		network.SendVia(env, &network.Transfer{
			DstName:   env.NameOf(g.UserID),
			Tag:       sim.TagGridletReturn,
			Payload:   g,
			SizeBytes: size,
			ToS:       g.ClassType,
			WorkID:    g.ID,
		})
		return
	}
	env.SendByID(g.UserID, 0, sim.TagGridletReturn, g)
}

func (h resourceHost) Ack(g *sim.Gridlet, accepted bool) {
	logrus.Debugf("%s: ack gridlet %d accepted=%v", h.r.name, g.ID, accepted)
	h.r.env.SendByID(g.UserID, 0, sim.TagGridletSubmitAck, &StatusReply{GridletID: g.ID, Status: g.Status})
}

func (r *Resource) record(event string, g *sim.Gridlet) {
	if r.recorder == nil {
		return
	}
	r.recorder.RecordEvent(r.name, event, g.ID, r.name, string(g.Status), r.env.Clock())
}

// Body registers with the information service, attaches the policy, and
// serves requests until END_OF_SIMULATION.
func (r *Resource) Body(env *sim.Env) {
	r.env = env
	r.pol.Attach(resourceHost{r: r}, r.char)

	arCapable := policy.SupportsReservations(r.pol)
	if r.gisName != "" {
		tag := sim.TagRegisterResource
		if arCapable {
			tag = sim.TagRegisterResourceAR
		}
		env.Send(r.gisName, 0, tag, &RegistryEntry{
			ResourceID: env.ID(),
			Name:       r.name,
			Char:       r.char,
			ARCapable:  arCapable,
		})
	}

	for {
		msg := env.Receive()
		switch msg.Tag {
		case sim.TagEndOfSimulation:
			return

		case sim.TagGridletSubmit:
			req, ok := msg.Data.(*SubmitRequest)
			if !ok {
				logrus.Warnf("%s: malformed submit from %d", r.name, msg.Src)
				continue
			}
			g := req.Gridlet
			g.ResourceID = env.ID()
			r.record(string(sim.TagGridletSubmit), g)
			r.pol.Submit(g, req.AckWanted)

		case sim.TagGridletCancel:
			ref := msg.Data.(*GridletRef)
			if g := r.pol.Cancel(ref.GridletID, ref.UserID); g != nil {
				r.record(string(sim.TagGridletCancel), g)
				env.SendByID(msg.Src, 0, sim.TagGridletReturn, g)
			} else {
				env.SendByID(msg.Src, 0, sim.TagGridletReturn, nil)
			}

		case sim.TagGridletPause:
			ref := msg.Data.(*GridletRef)
			ok := r.pol.Pause(ref.GridletID, ref.UserID)
			env.SendByID(msg.Src, 0, sim.TagGridletStatus, &StatusReply{GridletID: ref.GridletID, Status: r.statusOr(ref, ok)})

		case sim.TagGridletResume:
			ref := msg.Data.(*GridletRef)
			ok := r.pol.Resume(ref.GridletID, ref.UserID)
			env.SendByID(msg.Src, 0, sim.TagGridletStatus, &StatusReply{GridletID: ref.GridletID, Status: r.statusOr(ref, ok)})

		case sim.TagGridletMove:
			ref := msg.Data.(*GridletRef)
			g := r.pol.Move(ref.GridletID, ref.UserID)
			env.SendByID(msg.Src, 0, sim.TagGridletReturn, g)

		case sim.TagGridletStatus:
			ref := msg.Data.(*GridletRef)
			env.SendByID(msg.Src, 0, sim.TagGridletStatus, &StatusReply{
				GridletID: ref.GridletID,
				Status:    r.pol.Status(ref.GridletID, ref.UserID),
			})

		case sim.TagResourceCharacteristics:
			env.SendByID(msg.Src, 0, sim.TagResourceCharacteristics, r.char)

		case sim.TagReservationCreate, sim.TagReservationCommit, sim.TagReservationCancel,
			sim.TagReservationModify, sim.TagReservationStatus, sim.TagReservationListFreeTime:
			r.handleReservation(msg)

		case sim.TagInternal:
			r.pol.HandleInternal(msg.Data)

		default:
			logrus.Debugf("%s: ignoring %s from %d", r.name, msg.Tag, msg.Src)
		}
	}
}

func (r *Resource) statusOr(ref *GridletRef, ok bool) sim.GridletStatus {
	if !ok {
		return sim.StatusFailed
	}
	return r.pol.Status(ref.GridletID, ref.UserID)
}

// handleReservation serves the reservation message set, answering
// NO_AR_SUPPORT when the policy does not honor reservations.
func (r *Resource) handleReservation(msg *sim.Message) {
	env := r.env
	rp, ok := r.pol.(policy.ReservationPolicy)
	if !ok {
		env.SendByID(msg.Src, 0, sim.TagReservationResult, ReservationResult{Code: policy.ErrNoARSupport})
		return
	}

	var result ReservationResult
	switch msg.Tag {
	case sim.TagReservationCreate:
		req := msg.Data.(*CreateReservation)
		result = rp.CreateReservation(msg.Src, req.Start, req.Duration, req.NumPE)
		if result.OK() {
			result.Reservation.ResourceID = env.ID()
		}
	case sim.TagReservationCommit:
		ref := msg.Data.(*ReservationRef)
		result = rp.CommitReservation(ref.ReservationID)
		if result.OK() && ref.Gridlet != nil {
			ref.Gridlet.ReservationID = ref.ReservationID
			ref.Gridlet.ResourceID = env.ID()
			rp.Submit(ref.Gridlet, false)
		}
	case sim.TagReservationCancel:
		ref := msg.Data.(*ReservationRef)
		result = rp.CancelReservation(ref.ReservationID)
	case sim.TagReservationModify:
		req := msg.Data.(*ModifyReservation)
		result = rp.ModifyReservation(req.ReservationID, req.Start, req.Duration, req.NumPE)
	case sim.TagReservationStatus:
		ref := msg.Data.(*ReservationRef)
		result = rp.QueryReservation(ref.ReservationID)
	case sim.TagReservationListFreeTime:
		q := msg.Data.(*FreeTimeQuery)
		env.SendByID(msg.Src, 0, sim.TagReservationListFreeTime, rp.ListFreeTime(q.From, q.To))
		return
	}
	env.SendByID(msg.Src, 0, sim.TagReservationResult, result)
}
