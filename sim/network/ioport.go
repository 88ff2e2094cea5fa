package network

import (
	"github.com/sirupsen/logrus"

	"github.com/gridlab/gridsim/sim"
)

// PortName returns the IO-port entity name for an owner entity.
func PortName(owner string) string { return owner + ":io" }

// SendVia hands a transfer to the calling entity's own IO port.
func SendVia(env *sim.Env, t *Transfer) {
	env.Send(PortName(env.EntityName()), 0, sim.TagNetSubmit, t)
}

// Ping sends an info packet toward dst; the reply arrives at the caller as
// an INFOPKT_RETURN message carrying the hop records.
func Ping(env *sim.Env, dst string, sizeBytes int64) {
	SendVia(env, &Transfer{
		DstName:   dst,
		Tag:       sim.TagInfoPktSubmit,
		Payload:   &InfoPacket{SrcName: env.EntityName(), DstName: dst, SizeBytes: sizeBytes, Sent: env.Clock()},
		SizeBytes: sizeBytes,
	})
}

type asmKey struct {
	src int
	seq int
}

type asmState struct {
	tag     sim.Tag
	payload any
	got     int
	total   int
}

// IOPort connects one owner entity to its access router: it fragments
// outbound transfers to the access link's MTU, serializes them through a
// packet scheduler, reassembles inbound fragments by (source, sequence),
// and relays drop notices to the owner.
type IOPort struct {
	ownerName  string
	routerName string
	link       Link
	schedCfg   SchedulerConfig

	env      *sim.Env
	sched    PacketScheduler
	busy     bool
	current  *Packet
	routerID int
	ownerID  int

	nextSeq   int
	nextPktID int
	assembly  map[asmKey]*asmState
}

func NewIOPort(ownerName, routerName string, link Link, schedCfg SchedulerConfig) *IOPort {
	return &IOPort{
		ownerName:  ownerName,
		routerName: routerName,
		link:       link,
		schedCfg:   schedCfg,
		assembly:   make(map[asmKey]*asmState),
	}
}

func (p *IOPort) Name() string { return PortName(p.ownerName) }

func (p *IOPort) Body(env *sim.Env) {
	p.env = env
	p.sched = NewScheduler(p.schedCfg, env.Rand(sim.SubsystemNetwork))
	p.routerID = env.Lookup(p.routerName)
	p.ownerID = env.Lookup(p.ownerName)
	if p.routerID == 0 {
		logrus.Warnf("%s: access router %q not registered", p.Name(), p.routerName)
	}

	for {
		msg := env.Receive()
		switch msg.Tag {
		case sim.TagEndOfSimulation:
			return
		case sim.TagNetSubmit:
			p.submit(msg.Data.(*Transfer))
		case sim.TagPacketForward:
			p.arrive(msg.Data.(*Packet))
		case sim.TagPacketDropped:
			// the drop concerns one of this port's transfers; the owner
			// decides what to do with the affected work
			env.SendByID(p.ownerID, 0, sim.TagPacketDropped, msg.Data)
		case sim.TagInternal:
			if _, ok := msg.Data.(linkDone); ok {
				p.transmitComplete()
			}
		default:
			logrus.Debugf("%s: ignoring %s from %d", p.Name(), msg.Tag, msg.Src)
		}
	}
}

// submit fragments a transfer into MTU-sized packets and queues them on the
// access link.
func (p *IOPort) submit(t *Transfer) {
	dstPort := p.env.Lookup(PortName(t.DstName))
	if dstPort == 0 {
		logrus.Warnf("%s: destination %q has no IO port, dropping transfer", p.Name(), t.DstName)
		return
	}
	p.nextSeq++
	total := p.link.Fragments(t.SizeBytes)
	remaining := t.SizeBytes
	for i := 0; i < total; i++ {
		size := remaining
		if p.link.MTUBytes > 0 && size > int64(p.link.MTUBytes) {
			size = int64(p.link.MTUBytes)
		}
		remaining -= size
		p.nextPktID++
		pkt := &Packet{
			Tag:       t.Tag,
			SizeBytes: size,
			ToS:       t.ToS,
			SrcID:     p.env.ID(),
			DstID:     dstPort,
			OwnerID:   p.ownerID,
			WorkID:    t.WorkID,
			ID:        p.nextPktID,
			SeqID:     p.nextSeq,
			FragIndex: i,
			FragTotal: total,
		}
		if i == 0 {
			pkt.Payload = t.Payload
		}
		if !p.sched.Enqueue(pkt, p.env.Clock()) {
			logrus.Debugf("%s: access scheduler dropped %v", p.Name(), pkt)
			p.env.SendByID(p.ownerID, 0, sim.TagPacketDropped, &DropNotice{Packet: pkt})
			continue
		}
		if !p.busy {
			p.startTransmit()
		}
	}
}

func (p *IOPort) startTransmit() {
	pkt := p.sched.Dequeue(p.env.Clock())
	if pkt == nil {
		p.busy = false
		p.current = nil
		return
	}
	p.busy = true
	p.current = pkt
	p.env.SendByID(p.env.ID(), p.link.TransmitTime(pkt.Bits()), sim.TagInternal, linkDone{peer: p.routerID})
}

func (p *IOPort) transmitComplete() {
	if p.current == nil {
		return
	}
	p.env.SendByID(p.routerID, p.link.PropDelay, sim.TagPacketForward, p.current)
	p.startTransmit()
}

// arrive reassembles inbound fragments and delivers the completed payload
// to the owner; info packets bounce back to their origin instead.
func (p *IOPort) arrive(pkt *Packet) {
	key := asmKey{src: pkt.SrcID, seq: pkt.SeqID}
	st := p.assembly[key]
	if st == nil {
		st = &asmState{total: pkt.FragTotal}
		p.assembly[key] = st
	}
	st.got++
	if pkt.Payload != nil {
		st.payload = pkt.Payload
		st.tag = pkt.Tag
	}
	if st.got < st.total {
		return
	}
	delete(p.assembly, key)

	if st.tag == sim.TagInfoPktSubmit {
		info, ok := st.payload.(*InfoPacket)
		if !ok {
			return
		}
		info.Hops = append(info.Hops, Hop{Name: p.Name(), Time: p.env.Clock(), BaudOut: p.link.Baud})
		p.submit(&Transfer{
			DstName:   info.SrcName,
			Tag:       sim.TagInfoPktReturn,
			Payload:   info,
			SizeBytes: info.SizeBytes,
		})
		return
	}
	p.env.SendByID(p.ownerID, 0, st.tag, st.payload)
}
