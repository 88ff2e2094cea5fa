package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gridlab/gridsim/sim/network"
	"github.com/gridlab/gridsim/sim/workload"
)

// ResourceConfig describes one simulated resource in a scenario file.
type ResourceConfig struct {
	Name     string  `yaml:"name"`
	Machines int     `yaml:"machines"`
	PEs      int     `yaml:"pes"`
	MIPS     float64 `yaml:"mips"`
	Cost     float64 `yaml:"cost"`
	Policy   string  `yaml:"policy"`
	Regional string  `yaml:"regional-gis"`
	Router   string  `yaml:"router"`
}

// UserConfig describes one workload-driven user entity.
type UserConfig struct {
	Name     string        `yaml:"name"`
	Resource string        `yaml:"resource"`
	Router   string        `yaml:"router"`
	Workload workload.Spec `yaml:"workload"`
}

// NetworkConfig selects the topology and per-link scheduler.
type NetworkConfig struct {
	Topology    string             `yaml:"topology"`
	Scheduler   string             `yaml:"scheduler"`
	BufferBytes int64              `yaml:"buffer-bytes"`
	Weights     map[int]float64    `yaml:"weights"`
	MinTh       float64            `yaml:"min-th"`
	MaxTh       float64            `yaml:"max-th"`
	MaxP        float64            `yaml:"max-p"`
	Stats       bool               `yaml:"collect-stats"`
	SetupWindow float64            `yaml:"setup-window"`
	AccessLinks map[string]LinkCfg `yaml:"access-links"`
}

// LinkCfg is the access link of one host.
type LinkCfg struct {
	Baud    float64 `yaml:"baud"`
	DelayMs float64 `yaml:"delay-ms"`
	MTU     int     `yaml:"mtu"`
}

// Scenario is the top-level simulation description.
type Scenario struct {
	Seed      int64            `yaml:"seed"`
	Regionals []string         `yaml:"regional-gis"`
	Resources []ResourceConfig `yaml:"resources"`
	Users     []UserConfig     `yaml:"users"`
	Network   *NetworkConfig   `yaml:"network"`
}

// LoadScenario parses and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate rejects scenarios a run could not honor.
func (sc *Scenario) Validate() error {
	if len(sc.Resources) == 0 {
		return fmt.Errorf("scenario declares no resources")
	}
	names := map[string]bool{}
	for _, rc := range sc.Resources {
		if rc.Name == "" {
			return fmt.Errorf("resource without a name")
		}
		if names[rc.Name] {
			return fmt.Errorf("duplicate resource name %q", rc.Name)
		}
		names[rc.Name] = true
		if rc.Machines <= 0 || rc.PEs <= 0 || rc.MIPS <= 0 {
			return fmt.Errorf("resource %q: machines, pes and mips must be positive", rc.Name)
		}
	}
	for _, uc := range sc.Users {
		if uc.Name == "" {
			return fmt.Errorf("user without a name")
		}
		if !names[uc.Resource] {
			return fmt.Errorf("user %q targets unknown resource %q", uc.Name, uc.Resource)
		}
		if err := uc.Workload.Validate(); err != nil {
			return fmt.Errorf("user %q workload: %w", uc.Name, err)
		}
	}
	if sc.Network != nil {
		if sc.Network.Topology == "" {
			return fmt.Errorf("network section needs a topology file")
		}
		if !network.IsValidScheduler(sc.Network.Scheduler) {
			return fmt.Errorf("unknown packet scheduler %q", sc.Network.Scheduler)
		}
	}
	return nil
}

// SchedulerConfig converts the yaml network knobs to the network package's
// scheduler configuration.
func (nc *NetworkConfig) SchedulerConfig() network.SchedulerConfig {
	return network.SchedulerConfig{
		Kind:         nc.Scheduler,
		BufferBytes:  nc.BufferBytes,
		Weights:      nc.Weights,
		MinTh:        nc.MinTh,
		MaxTh:        nc.MaxTh,
		MaxP:         nc.MaxP,
		CollectStats: nc.Stats,
	}
}
