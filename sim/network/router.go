package network

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/gridlab/gridsim/sim"
)

// advert is the flooding payload routers exchange while building tables.
type advert struct {
	Origin int
	Seq    int
	Dests  []int
}

type advertKey struct {
	origin int
	seq    int
}

// linkDone marks the end of one packet's serialization on an outbound link.
type linkDone struct {
	peer int
}

// outLink is the per-neighbor transmission state: the link, its packet
// scheduler, and the packet currently on the wire.
type outLink struct {
	peerID  int
	link    Link
	sched   PacketScheduler
	busy    bool
	current *Packet
}

type neighborSpec struct {
	name string
	link Link
}

type hostSpec struct {
	portName string
	link     Link
}

// Router forwards packets by destination IO port. Tables are built by
// flooding reachability adverts at startup; packets arriving for unknown
// destinations before the tables converge are dropped and logged, which is
// why drivers wait out the setup window before using the network.
type Router struct {
	name      string
	schedCfg  SchedulerConfig
	neighbors []neighborSpec
	hosts     []hostSpec

	env       *sim.Env
	outs      map[int]*outLink
	table     map[int]int // destination port id -> next-hop peer id
	seen      map[advertKey]bool
	advertSeq int
}

func NewRouter(name string, schedCfg SchedulerConfig) *Router {
	return &Router{
		name:     name,
		schedCfg: schedCfg,
		outs:     make(map[int]*outLink),
		table:    make(map[int]int),
		seen:     make(map[advertKey]bool),
	}
}

func (r *Router) Name() string { return r.name }

// AddNeighbor wires a directed link toward another router. Called while
// building the network, before the simulation starts.
func (r *Router) AddNeighbor(name string, link Link) {
	r.neighbors = append(r.neighbors, neighborSpec{name: name, link: link})
}

// AddHost wires the access link toward an attached IO port.
func (r *Router) AddHost(portName string, link Link) {
	r.hosts = append(r.hosts, hostSpec{portName: portName, link: link})
}

func (r *Router) Body(env *sim.Env) {
	r.env = env
	rng := env.Rand(sim.SubsystemNetwork)

	var localPorts []int
	for _, h := range r.hosts {
		id := env.Lookup(h.portName)
		if id == 0 {
			logrus.Warnf("%s: attached host port %q not registered", r.name, h.portName)
			continue
		}
		r.outs[id] = &outLink{peerID: id, link: h.link, sched: NewScheduler(r.schedCfg, rng)}
		localPorts = append(localPorts, id)
	}
	var neighborIDs []int
	for _, n := range r.neighbors {
		id := env.Lookup(n.name)
		if id == 0 {
			logrus.Warnf("%s: neighbor router %q not registered", r.name, n.name)
			continue
		}
		r.outs[id] = &outLink{peerID: id, link: n.link, sched: NewScheduler(r.schedCfg, rng)}
		neighborIDs = append(neighborIDs, id)
	}

	// announce local reachability
	r.advertSeq++
	ad := &advert{Origin: env.ID(), Seq: r.advertSeq, Dests: localPorts}
	r.seen[advertKey{origin: ad.Origin, seq: ad.Seq}] = true
	for _, id := range neighborIDs {
		env.SendByID(id, r.outs[id].link.PropDelay, TagRouterAdvert, ad)
	}

	for {
		msg := env.Receive()
		switch msg.Tag {
		case sim.TagEndOfSimulation:
			return
		case TagRouterAdvert:
			r.handleAdvert(msg)
		case sim.TagPacketForward:
			r.forward(msg.Data.(*Packet))
		case sim.TagInternal:
			if done, ok := msg.Data.(linkDone); ok {
				r.transmitComplete(done.peer)
			}
		default:
			logrus.Debugf("%s: ignoring %s from %d", r.name, msg.Tag, msg.Src)
		}
	}
}

// handleAdvert learns routes from a neighbor's flood and re-floods it once.
// Duplicate suppression keys on (origin, sequence).
func (r *Router) handleAdvert(msg *sim.Message) {
	ad := msg.Data.(*advert)
	key := advertKey{origin: ad.Origin, seq: ad.Seq}
	if r.seen[key] {
		return
	}
	r.seen[key] = true
	for _, dest := range ad.Dests {
		if _, local := r.outs[dest]; local {
			continue
		}
		if _, known := r.table[dest]; !known {
			r.table[dest] = msg.Src
		}
	}
	for _, n := range r.neighbors {
		peer := r.env.Lookup(n.name)
		if peer == 0 || peer == msg.Src {
			continue
		}
		r.env.SendByID(peer, r.outs[peer].link.PropDelay, TagRouterAdvert, ad)
	}
}

// forward looks up the next hop and enqueues the packet on the outbound
// link's scheduler. Unknown destinations are dropped without retransmission.
func (r *Router) forward(pkt *Packet) {
	out, ok := r.outs[pkt.DstID]
	if !ok {
		via, known := r.table[pkt.DstID]
		if !known {
			logrus.Warnf("%s: no route to %d, dropping %v", r.name, pkt.DstID, pkt)
			return
		}
		out = r.outs[via]
	}
	if info, isInfo := pkt.Payload.(*InfoPacket); isInfo {
		info.Hops = append(info.Hops, Hop{Name: r.name, Time: r.env.Clock(), BaudOut: out.link.Baud})
	}
	if !out.sched.Enqueue(pkt, r.env.Clock()) {
		logrus.Debugf("%s: scheduler dropped %v", r.name, pkt)
		r.env.SendByID(pkt.SrcID, 0, sim.TagPacketDropped, &DropNotice{Packet: pkt})
		return
	}
	if !out.busy {
		r.startTransmit(out)
	}
}

func (r *Router) startTransmit(out *outLink) {
	pkt := out.sched.Dequeue(r.env.Clock())
	if pkt == nil {
		out.busy = false
		out.current = nil
		return
	}
	out.busy = true
	out.current = pkt
	r.env.SendByID(r.env.ID(), out.link.TransmitTime(pkt.Bits()), sim.TagInternal, linkDone{peer: out.peerID})
}

// transmitComplete propagates the serialized packet to the next hop and
// pulls the following one off the scheduler.
func (r *Router) transmitComplete(peer int) {
	out := r.outs[peer]
	if out == nil || out.current == nil {
		return
	}
	r.env.SendByID(peer, out.link.PropDelay, sim.TagPacketForward, out.current)
	r.startTransmit(out)
}

// BufferStats exposes per-link RED samples for statistics writers, ordered
// by peer id; empty when the schedulers do not collect them.
func (r *Router) BufferStats() [][]QueueSample {
	type sampler interface{ Stats() []QueueSample }
	peers := make([]int, 0, len(r.outs))
	for peer := range r.outs {
		peers = append(peers, peer)
	}
	sort.Ints(peers)
	var stats [][]QueueSample
	for _, peer := range peers {
		if s, ok := r.outs[peer].sched.(sampler); ok && len(s.Stats()) > 0 {
			stats = append(stats, s.Stats())
		}
	}
	return stats
}
