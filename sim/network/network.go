package network

import (
	"fmt"
	"sort"

	"github.com/gridlab/gridsim/sim"
)

// Config parameterizes a network build.
type Config struct {
	Scheduler SchedulerConfig
	// SetupWindow is how long drivers should wait after start before using
	// the network, giving the flooded routing tables time to converge.
	SetupWindow float64
}

// DefaultSetupWindow is a safe table-convergence wait for small topologies.
const DefaultSetupWindow = 5.0

// Network holds the routers built from a topology and attaches hosts to
// them. All wiring happens before the simulation starts.
type Network struct {
	sim     *sim.Simulation
	cfg     Config
	routers map[string]*Router
}

// Build registers one router entity per topology node and wires the
// declared links in both directions.
func Build(s *sim.Simulation, topo *Topology, cfg Config) (*Network, error) {
	if cfg.SetupWindow <= 0 {
		cfg.SetupWindow = DefaultSetupWindow
	}
	n := &Network{sim: s, cfg: cfg, routers: make(map[string]*Router)}
	for _, name := range topo.Routers {
		r := NewRouter(name, cfg.Scheduler)
		if _, err := s.Register(r); err != nil {
			return nil, err
		}
		n.routers[name] = r
	}
	for _, tl := range topo.Links {
		link := Link{
			Baud:        tl.Baud,
			PropDelay:   tl.DelayMs / 1000,
			MTUBytes:    tl.MTUBytes,
			BufferBytes: cfg.Scheduler.BufferBytes,
		}
		n.routers[tl.A].AddNeighbor(tl.B, link)
		n.routers[tl.B].AddNeighbor(tl.A, link)
	}
	return n, nil
}

// Attach gives an owner entity an IO port on the named router. The owner
// must already be registered; the port entity is registered here.
func (n *Network) Attach(ownerName, routerName string, link Link) (*IOPort, error) {
	r, ok := n.routers[routerName]
	if !ok {
		return nil, fmt.Errorf("unknown router %q", routerName)
	}
	if n.sim.EntityID(ownerName) == 0 {
		return nil, fmt.Errorf("owner entity %q not registered", ownerName)
	}
	port := NewIOPort(ownerName, routerName, link, n.cfg.Scheduler)
	if _, err := n.sim.Register(port); err != nil {
		return nil, err
	}
	r.AddHost(port.Name(), link)
	return port, nil
}

// Router returns a built router by name, or nil.
func (n *Network) Router(name string) *Router { return n.routers[name] }

// RouterNames lists the built routers in sorted order.
func (n *Network) RouterNames() []string {
	names := make([]string, 0, len(n.routers))
	for name := range n.routers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetupWindow reports how long drivers should hold before sending.
func (n *Network) SetupWindow() float64 { return n.cfg.SetupWindow }
