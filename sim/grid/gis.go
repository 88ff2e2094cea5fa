package grid

import (
	"github.com/sirupsen/logrus"

	"github.com/gridlab/gridsim/sim"
)

// SystemGISName is the well-known name of the top-level information
// service.
const SystemGISName = "system-gis"

// SystemGIS is the authoritative registry of resources and regional
// information services.
type SystemGIS struct {
	resources map[int]RegistryEntry
	regionals []int
}

func NewSystemGIS() *SystemGIS {
	return &SystemGIS{resources: make(map[int]RegistryEntry)}
}

func (g *SystemGIS) Name() string { return SystemGISName }

func (g *SystemGIS) Body(env *sim.Env) {
	for {
		msg := env.Receive()
		switch msg.Tag {
		case sim.TagEndOfSimulation:
			return

		case sim.TagRegisterResource, sim.TagRegisterResourceAR:
			entry := msg.Data.(*RegistryEntry)
			g.resources[entry.ResourceID] = *entry

		case sim.TagRegisterRegionalGIS:
			g.regionals = append(g.regionals, msg.Src)

		case sim.TagInquiryRegionalGIS:
			ids := make([]int, len(g.regionals))
			copy(ids, g.regionals)
			env.SendByID(msg.Src, 0, sim.TagInquiryRegionalGIS, &RegionalListReply{RegionalIDs: ids})

		case sim.TagInquiryLocalResources, sim.TagInquiryGlobalResources, sim.TagGISInquiryResourceList:
			replyTag := sim.TagResourceList
			if msg.Tag == sim.TagGISInquiryResourceList {
				replyTag = sim.TagGISInquiryResourceReply
			}
			env.SendByID(msg.Src, 0, replyTag, &ResourceListReply{Resources: g.snapshot(false)})

		case sim.TagInquiryLocalResourcesAR:
			env.SendByID(msg.Src, 0, sim.TagResourceARList, &ResourceListReply{Resources: g.snapshot(true)})

		case sim.TagNotifyResourceFailure:
			notice := msg.Data.(*FailureNotice)
			delete(g.resources, notice.ResourceID)

		default:
			logrus.Debugf("%s: ignoring %s from %d", SystemGISName, msg.Tag, msg.Src)
		}
	}
}

// snapshot lists registered resources in id order; arOnly restricts to
// AR-capable ones.
func (g *SystemGIS) snapshot(arOnly bool) []RegistryEntry {
	var out []RegistryEntry
	for id := range g.resources {
		out = append(out, g.resources[id])
	}
	sortEntries(out)
	if !arOnly {
		return out
	}
	kept := out[:0]
	for _, e := range out {
		if e.ARCapable {
			kept = append(kept, e)
		}
	}
	return kept
}

func sortEntries(entries []RegistryEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].ResourceID < entries[j-1].ResourceID; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

// RegionalGIS covers one region's resources and federates with the system
// GIS: registrations are forwarded upward, and a global inquiry fans out to
// every sibling region, coalescing concurrent queriers onto one fan-out.
type RegionalGIS struct {
	name string

	locals map[int]RegistryEntry

	// fan-out state: siblings cached after first demand, queriers waiting
	// on the in-flight fan-out, replies still outstanding
	siblings                []int
	siblingsKnown           bool
	pendingUsers            []int
	pendingRegionalQueriers []int
	awaitingReplies          int
	collected               []RegistryEntry
	fanoutActive            bool
}

func NewRegionalGIS(name string) *RegionalGIS {
	return &RegionalGIS{name: name, locals: make(map[int]RegistryEntry)}
}

func (g *RegionalGIS) Name() string { return g.name }

func (g *RegionalGIS) Body(env *sim.Env) {
	env.Send(SystemGISName, 0, sim.TagRegisterRegionalGIS, nil)

	for {
		msg := env.Receive()
		switch msg.Tag {
		case sim.TagEndOfSimulation:
			return

		case sim.TagRegisterResource, sim.TagRegisterResourceAR:
			entry := msg.Data.(*RegistryEntry)
			g.locals[entry.ResourceID] = *entry
			// forward upward so the system GIS stays authoritative
			env.Send(SystemGISName, 0, msg.Tag, entry)

		case sim.TagInquiryLocalResources:
			env.SendByID(msg.Src, 0, sim.TagResourceList, &ResourceListReply{Resources: g.localSnapshot(false)})

		case sim.TagInquiryLocalResourcesAR:
			env.SendByID(msg.Src, 0, sim.TagResourceARList, &ResourceListReply{Resources: g.localSnapshot(true)})

		case sim.TagGISInquiryResourceList:
			env.SendByID(msg.Src, 0, sim.TagGISInquiryResourceReply, &ResourceListReply{Resources: g.localSnapshot(false)})

		case sim.TagInquiryRegionalGIS:
			if reply, ok := msg.Data.(*RegionalListReply); ok {
				// answer from the system GIS for our own sibling lookup
				g.handleSiblingList(env, reply)
			} else {
				env.Send(SystemGISName, 0, sim.TagInquiryRegionalGIS, nil)
				g.pendingRegionalQueriers = append(g.pendingRegionalQueriers, msg.Src)
			}

		case sim.TagInquiryGlobalResources:
			g.handleGlobalInquiry(env, msg.Src)

		case sim.TagGISInquiryResourceReply:
			g.handleFanoutReply(env, msg.Data.(*ResourceListReply))

		case sim.TagNotifyResourceFailure:
			notice := msg.Data.(*FailureNotice)
			delete(g.locals, notice.ResourceID)
			env.Send(SystemGISName, 0, sim.TagNotifyResourceFailure, notice)

		default:
			logrus.Debugf("%s: ignoring %s from %d", g.name, msg.Tag, msg.Src)
		}
	}
}

func (g *RegionalGIS) localSnapshot(arOnly bool) []RegistryEntry {
	var out []RegistryEntry
	for id := range g.locals {
		out = append(out, g.locals[id])
	}
	sortEntries(out)
	if !arOnly {
		return out
	}
	kept := out[:0]
	for _, e := range out {
		if e.ARCapable {
			kept = append(kept, e)
		}
	}
	return kept
}

// handleGlobalInquiry starts a fan-out across sibling regions, or joins the
// querier onto one already in flight.
func (g *RegionalGIS) handleGlobalInquiry(env *sim.Env, querier int) {
	g.pendingUsers = append(g.pendingUsers, querier)
	if g.fanoutActive {
		return
	}
	g.fanoutActive = true
	g.collected = g.localSnapshot(false)
	if !g.siblingsKnown {
		env.Send(SystemGISName, 0, sim.TagInquiryRegionalGIS, nil)
		return
	}
	g.fanOut(env)
}

// handleSiblingList caches the regional list and continues a pending
// fan-out.
func (g *RegionalGIS) handleSiblingList(env *sim.Env, reply *RegionalListReply) {
	self := env.ID()
	g.siblings = g.siblings[:0]
	for _, id := range reply.RegionalIDs {
		if id != self {
			g.siblings = append(g.siblings, id)
		}
	}
	g.siblingsKnown = true
	for _, q := range g.pendingRegionalQueriers {
		env.SendByID(q, 0, sim.TagInquiryRegionalGIS, reply)
	}
	g.pendingRegionalQueriers = nil
	if g.fanoutActive {
		g.fanOut(env)
	}
}

func (g *RegionalGIS) fanOut(env *sim.Env) {
	if len(g.siblings) == 0 {
		g.finishFanout(env)
		return
	}
	g.awaitingReplies = len(g.siblings)
	for _, id := range g.siblings {
		env.SendByID(id, 0, sim.TagGISInquiryResourceList, nil)
	}
}

func (g *RegionalGIS) handleFanoutReply(env *sim.Env, reply *ResourceListReply) {
	if !g.fanoutActive {
		return
	}
	g.collected = append(g.collected, reply.Resources...)
	g.awaitingReplies--
	if g.awaitingReplies <= 0 {
		g.finishFanout(env)
	}
}

// finishFanout serves every waiting querier with the aggregated list.
func (g *RegionalGIS) finishFanout(env *sim.Env) {
	sortEntries(g.collected)
	for _, q := range g.pendingUsers {
		env.SendByID(q, 0, sim.TagResourceList, &ResourceListReply{Resources: g.collected})
	}
	g.pendingUsers = nil
	g.collected = nil
	g.fanoutActive = false
}
