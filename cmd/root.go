// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gridlab/gridsim/sim"
	"github.com/gridlab/gridsim/sim/grid"
	"github.com/gridlab/gridsim/sim/network"
	"github.com/gridlab/gridsim/sim/policy"
	"github.com/gridlab/gridsim/sim/trace"
	"github.com/gridlab/gridsim/sim/workload"
)

var (
	scenarioPath string
	logLevel     string
	seedOverride int64
	statsDir     string
	strictMode   bool
)

var rootCmd = &cobra.Command{
	Use:   "gridsim",
	Short: "Discrete-event simulator for clusters, Grids and reservation-capable resources",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario to completion and report per-gridlet accounting",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q", logLevel)
		}
		logrus.SetLevel(level)

		sc, err := LoadScenario(scenarioPath)
		if err != nil {
			return err
		}
		if seedOverride != 0 {
			sc.Seed = seedOverride
		}
		return runScenario(sc)
	},
}

func runScenario(sc *Scenario) error {
	s := sim.NewSimulation(sc.Seed)
	s.SetStrict(strictMode)
	recorder := trace.NewRecorder()

	logrus.Infof("run %s: %d resources, %d users, seed %d", recorder.RunID, len(sc.Resources), len(sc.Users), sc.Seed)

	if _, err := s.Register(grid.NewSystemGIS()); err != nil {
		return err
	}
	for _, name := range sc.Regionals {
		if _, err := s.Register(grid.NewRegionalGIS(name)); err != nil {
			return err
		}
	}

	for _, rc := range sc.Resources {
		if !policy.IsValid(rc.Policy) && rc.Policy != "" {
			return fmt.Errorf("resource %q: unknown policy %q", rc.Name, rc.Policy)
		}
		polName := rc.Policy
		if polName == "" {
			polName = policy.NameSpaceShared
		}
		char := sim.ResourceCharacteristics{
			NumMachines:   rc.Machines,
			PEsPerMachine: rc.PEs,
			MIPSPerPE:     rc.MIPS,
			CostPerPESec:  rc.Cost,
			AllocMode:     allocModeFor(polName),
		}
		gisName := rc.Regional
		if gisName == "" {
			gisName = grid.SystemGISName
		}
		res := grid.NewResource(rc.Name, char, policy.New(polName, policy.Options{}), gisName)
		res.SetRecorder(recorder)
		if rc.Router != "" && sc.Network != nil {
			res.UseNetwork()
		}
		if _, err := s.Register(res); err != nil {
			return err
		}
	}

	var clients []*workload.Client
	nextID := 1
	for _, uc := range sc.Users {
		items, err := workload.Generate(&uc.Workload, s.RNG().ForSubsystem(sim.SubsystemWorkload+"/"+uc.Name), nextID)
		if err != nil {
			return fmt.Errorf("user %q: %w", uc.Name, err)
		}
		nextID += len(items)
		client := workload.NewClient(uc.Name, uc.Resource, items)
		client.SetRecorder(recorder)
		clients = append(clients, client)
		if _, err := s.Register(client); err != nil {
			return err
		}
	}

	var net *network.Network
	if sc.Network != nil {
		var err error
		if net, err = buildNetwork(s, sc, clients); err != nil {
			return err
		}
	}

	if err := s.Run(); err != nil {
		return err
	}

	if net != nil {
		for _, name := range net.RouterNames() {
			for _, samples := range net.Router(name).BufferStats() {
				for _, sample := range samples {
					recorder.RecordBuffer(name, sample.Time, sample.Len, sample.Drops)
				}
			}
		}
	}

	completed, failed := 0, 0
	for _, c := range clients {
		completed += len(c.Completed)
		failed += len(c.Failed)
	}
	logrus.Infof("simulation finished at %.2f: %d gridlets completed, %d failed", s.Clock(), completed, failed)

	if statsDir != "" {
		if err := recorder.WriteCSV(statsDir); err != nil {
			return err
		}
		logrus.Infof("statistics written to %s", statsDir)
	}
	return nil
}

// buildNetwork wires the topology and attaches every router-bound resource
// and user.
func buildNetwork(s *sim.Simulation, sc *Scenario, clients []*workload.Client) (*network.Network, error) {
	topo, err := network.ParseTopologyFile(sc.Network.Topology)
	if err != nil {
		return nil, err
	}
	cfg := network.Config{
		Scheduler:   sc.Network.SchedulerConfig(),
		SetupWindow: sc.Network.SetupWindow,
	}
	net, err := network.Build(s, topo, cfg)
	if err != nil {
		return nil, err
	}

	attach := func(host, router string) error {
		lc, ok := sc.Network.AccessLinks[host]
		if !ok {
			lc = LinkCfg{Baud: 10e6, DelayMs: 1, MTU: 1500}
		}
		link := network.Link{Baud: lc.Baud, PropDelay: lc.DelayMs / 1000, MTUBytes: lc.MTU, BufferBytes: sc.Network.BufferBytes}
		_, err := net.Attach(host, router, link)
		return err
	}
	for _, rc := range sc.Resources {
		if rc.Router == "" {
			continue
		}
		if err := attach(rc.Name, rc.Router); err != nil {
			return nil, err
		}
	}
	for i, uc := range sc.Users {
		if uc.Router == "" {
			continue
		}
		if err := attach(uc.Name, uc.Router); err != nil {
			return nil, err
		}
		clients[i].UseNetwork(net.SetupWindow())
	}
	return net, nil
}

func allocModeFor(polName string) sim.AllocMode {
	switch polName {
	case policy.NameTimeShared:
		return sim.AllocTimeShared
	case policy.NameARConservative:
		return sim.AllocAdvanceRes
	default:
		return sim.AllocSpaceShared
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "scenario.yaml", "Scenario file (yaml)")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().Int64Var(&seedOverride, "seed", 0, "Override the scenario's master seed (0 keeps it)")
	runCmd.Flags().StringVar(&statsDir, "stats-dir", "", "Directory for per-entity CSV statistics (empty disables)")
	runCmd.Flags().BoolVar(&strictMode, "strict", false, "Escalate kernel invariant violations to fatal")

	rootCmd.AddCommand(runCmd)
}
