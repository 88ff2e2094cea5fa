package workload

import (
	"github.com/sirupsen/logrus"

	"github.com/gridlab/gridsim/sim"
	"github.com/gridlab/gridsim/sim/grid"
	"github.com/gridlab/gridsim/sim/network"
	"github.com/gridlab/gridsim/sim/trace"
)

// Client is a user entity: it submits its gridlet stream to a target
// resource on schedule, waits for the results, and accounts for them. With
// a network attachment, submissions travel as transfers and a packet drop
// terminally fails the affected gridlet.
type Client struct {
	name   string
	target string
	items  []Item

	viaNetwork bool
	netHold    float64 // wait for routing tables before the first transfer

	recorder *trace.Recorder

	Completed []*sim.Gridlet
	Failed    []*sim.Gridlet
}

func NewClient(name, target string, items []Item) *Client {
	return &Client{name: name, target: target, items: items}
}

// UseNetwork routes submissions through the client's IO port; hold is the
// network's setup window.
func (c *Client) UseNetwork(hold float64) {
	c.viaNetwork = true
	c.netHold = hold
}

// SetRecorder enables per-entity statistics rows.
func (c *Client) SetRecorder(rec *trace.Recorder) { c.recorder = rec }

func (c *Client) Name() string { return c.name }

func (c *Client) Body(env *sim.Env) {
	if c.viaNetwork && c.netHold > 0 {
		env.Hold(c.netHold)
	}

	inFlight := make(map[int]*sim.Gridlet, len(c.items))
	for _, it := range c.items {
		if wait := it.Arrival - env.Clock(); wait > 0 {
			env.Hold(wait)
		}
		g := it.Gridlet
		g.UserID = env.ID()
		g.SubmitTime = env.Clock()
		if err := g.SetStatus(sim.StatusReady); err != nil {
			logrus.Warnf("%s: %v", c.name, err)
			continue
		}
		inFlight[g.ID] = g
		c.record(string(sim.TagGridletSubmit), g, env.Clock())
		req := &grid.SubmitRequest{Gridlet: g}
		if c.viaNetwork {
			network.SendVia(env, &network.Transfer{
				DstName:   c.target,
				Tag:       sim.TagGridletSubmit,
				Payload:   req,
				SizeBytes: sizeOrMin(g.InputSize),
				ToS:       g.ClassType,
				WorkID:    g.ID,
			})
		} else {
			env.Send(c.target, 0, sim.TagGridletSubmit, req)
		}
	}

	for len(inFlight) > 0 {
		msg := env.ReceiveTagged(sim.TagGridletReturn, sim.TagPacketDropped, sim.TagEndOfSimulation)
		switch msg.Tag {
		case sim.TagEndOfSimulation:
			return
		case sim.TagGridletReturn:
			g, ok := msg.Data.(*sim.Gridlet)
			if !ok || g == nil {
				continue
			}
			delete(inFlight, g.ID)
			c.record(string(sim.TagGridletReturn), g, env.Clock())
			if g.Status == sim.StatusSuccess {
				c.Completed = append(c.Completed, g)
				if c.recorder != nil {
					c.recorder.RecordFin(c.name, g.UserID, g.ID, env.NameOf(g.ResourceID), g.Cost, g.ActualCPUTime, env.Clock())
				}
			} else {
				c.Failed = append(c.Failed, g)
			}
		case sim.TagPacketDropped:
			notice := msg.Data.(*network.DropNotice)
			g, ok := inFlight[notice.Packet.WorkID]
			if !ok {
				continue
			}
			// the transfer is gone; the gridlet fails terminally with no
			// GRIDLET_RETURN ever arriving
			delete(inFlight, g.ID)
			if err := g.SetStatus(sim.StatusFailed); err != nil {
				logrus.Warnf("%s: %v", c.name, err)
			}
			c.record(string(sim.TagPacketDropped), g, env.Clock())
			c.Failed = append(c.Failed, g)
			logrus.Debugf("%s: gridlet %d failed, packet dropped in transit", c.name, g.ID)
		}
	}
}

func (c *Client) record(event string, g *sim.Gridlet, now float64) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordEvent(c.name, event, g.ID, c.target, string(g.Status), now)
}

// sizeOrMin keeps zero-size payloads transferable.
func sizeOrMin(size int64) int64 {
	if size <= 0 {
		return 1
	}
	return size
}
