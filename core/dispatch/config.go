package dispatch

import (
	"fmt"
	"time"

	"github.com/kilianp07/geodispatch/core/model"
)

// Toggles switch the automated passes independently.
type Toggles struct {
	Assignment     bool `json:"assignment"`
	RouteAdvisory  bool `json:"route_advisory"`
	Escalation     bool `json:"escalation"`
	RebalanceHints bool `json:"rebalance_hints"`
}

// AllOn enables every pass.
func AllOn() Toggles {
	return Toggles{Assignment: true, RouteAdvisory: true, Escalation: true, RebalanceHints: true}
}

// Config defines dispatch engine settings.
type Config struct {
	TickIntervalSeconds        int                         `json:"tick_interval_seconds"`
	Automation                 Toggles                     `json:"automation"`
	EscalateHighAfterMinutes   int                         `json:"escalate_high_after_minutes"`
	EscalateUrgentAfterMinutes int                         `json:"escalate_urgent_after_minutes"`
	RebalanceBonus             float64                     `json:"rebalance_bonus"`
	AdvisoryReductionPercent   float64                     `json:"advisory_reduction_percent"`
	AdjacentZones              map[model.Zone][]model.Zone `json:"adjacent_zones"`
	Weights                    *Weights                    `json:"weights"`
}

// SetDefaults fills zero values with the reference behavior. Toggles are left
// untouched.
func (c *Config) SetDefaults() {
	if c.TickIntervalSeconds == 0 {
		c.TickIntervalSeconds = 3
	}
	if c.EscalateHighAfterMinutes == 0 {
		c.EscalateHighAfterMinutes = 60
	}
	if c.EscalateUrgentAfterMinutes == 0 {
		c.EscalateUrgentAfterMinutes = 90
	}
	if c.RebalanceBonus == 0 {
		c.RebalanceBonus = 20
	}
	if c.AdvisoryReductionPercent == 0 {
		c.AdvisoryReductionPercent = 15
	}
	if c.Weights == nil {
		w := DefaultWeights()
		c.Weights = &w
	}
}

// Validate checks the settings after defaults were applied.
func (c Config) Validate() error {
	if c.TickIntervalSeconds < 0 {
		return fmt.Errorf("tick interval must not be negative")
	}
	if c.EscalateUrgentAfterMinutes < c.EscalateHighAfterMinutes {
		return fmt.Errorf("urgent escalation threshold must not precede high threshold")
	}
	if c.AdvisoryReductionPercent < 0 || c.AdvisoryReductionPercent >= 100 {
		return fmt.Errorf("advisory reduction must be in [0,100)")
	}
	return nil
}

func (c Config) tickInterval() time.Duration {
	return time.Duration(c.TickIntervalSeconds) * time.Second
}

// adjacent reports whether a and b are the same zone or configured neighbors
// in either direction.
func (c Config) adjacent(a, b model.Zone) bool {
	if a == b {
		return true
	}
	for _, z := range c.AdjacentZones[a] {
		if z == b {
			return true
		}
	}
	for _, z := range c.AdjacentZones[b] {
		if z == a {
			return true
		}
	}
	return false
}
