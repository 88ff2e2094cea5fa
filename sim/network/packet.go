// Package network models store-and-forward packet transport between
// simulated entities: links with bandwidth/delay/MTU, routers with
// flooding-built tables, and pluggable per-link packet schedulers.
package network

import (
	"fmt"

	"github.com/gridlab/gridsim/sim"
)

// Local wire tags for the routing plane.
const (
	// TagRouterAdvert floods reachability adverts between routers during
	// table build-up.
	TagRouterAdvert sim.Tag = "ROUTER_ADVERT"
)

// Transfer is what an owner entity hands to its IO port for delivery.
type Transfer struct {
	DstName   string // destination owner entity name
	Tag       sim.Tag
	Payload   any
	SizeBytes int64
	ToS       int
	// WorkID ties the transfer to a unit of work (a gridlet id) so drop
	// notices can name what was lost.
	WorkID int
}

// Packet is one unit crossing the network: either a whole transfer or an
// MTU-sized fragment of one. Reassembly keys on (SrcID, SeqID).
type Packet struct {
	Tag     sim.Tag
	Payload any // carried on the first fragment only

	SizeBytes int64
	ToS       int

	SrcID   int // origin IO port entity id
	DstID   int // destination IO port entity id
	OwnerID int // origin owner entity id, for drop notices
	WorkID  int // originating work unit, carried on every fragment

	ID        int
	SeqID     int
	FragIndex int
	FragTotal int
}

// Bits returns the packet size in bits.
func (p *Packet) Bits() float64 { return float64(p.SizeBytes) * 8 }

func (p *Packet) String() string {
	return fmt.Sprintf("pkt %d.%d (%d/%d, %dB, tos %d)", p.SrcID, p.SeqID, p.FragIndex+1, p.FragTotal, p.SizeBytes, p.ToS)
}

// Hop records one router traversal of an info packet.
type Hop struct {
	Name    string
	Time    float64
	BaudOut float64
}

// InfoPacket is the ping envelope: it accumulates per-hop records on the
// way to the destination and returns them to the sender.
type InfoPacket struct {
	SrcName   string
	DstName   string
	SizeBytes int64
	Sent      float64
	Hops      []Hop
}

// TotalDelay returns the elapsed time up to the latest recorded hop.
func (ip *InfoPacket) TotalDelay() float64 {
	if len(ip.Hops) == 0 {
		return 0
	}
	return ip.Hops[len(ip.Hops)-1].Time - ip.Sent
}

// DropNotice tells an owner entity that a packet of its transfer was
// discarded; the packet's WorkID identifies the affected work.
type DropNotice struct {
	Packet *Packet
}
