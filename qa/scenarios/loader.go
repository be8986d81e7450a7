// Package scenarios replays YAML dispatch scenarios against the engine.
package scenarios

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/geodispatch/core/dispatch"
	"github.com/kilianp07/geodispatch/core/store"
)

// ToggleDef switches automated passes off for a scenario. Unset toggles stay on.
type ToggleDef struct {
	Assignment     *bool `yaml:"assignment"`
	RouteAdvisory  *bool `yaml:"route_advisory"`
	Escalation     *bool `yaml:"escalation"`
	RebalanceHints *bool `yaml:"rebalance_hints"`
}

func (d *ToggleDef) ToModel() dispatch.Toggles {
	t := dispatch.AllOn()
	if d == nil {
		return t
	}
	set := func(dst *bool, v *bool) {
		if v != nil {
			*dst = *v
		}
	}
	set(&t.Assignment, d.Assignment)
	set(&t.RouteAdvisory, d.RouteAdvisory)
	set(&t.Escalation, d.Escalation)
	set(&t.RebalanceHints, d.RebalanceHints)
	return t
}

type Expected struct {
	// Assignments maps a delivery to the driver it must end up with.
	Assignments map[string]string `yaml:"assignments"`
	Unassigned  []string          `yaml:"unassigned"`
	// Priorities maps a delivery to its final priority.
	Priorities map[string]string   `yaml:"priorities"`
	Hints      map[string][]string `yaml:"hints,omitempty"`
}

type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Seed        store.SeedFile `yaml:"seed"`
	Now         time.Time      `yaml:"now"`
	Ticks       int            `yaml:"ticks"`
	// TickMinutes separates consecutive ticks.
	TickMinutes int        `yaml:"tick_minutes"`
	Automation  *ToggleDef `yaml:"automation,omitempty"`
	Expected    Expected   `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Ticks == 0 {
		sc.Ticks = 1
	}
	return &sc, nil
}
