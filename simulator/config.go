// Package simulator emulates a driver fleet: it generates a roster and
// delivery orders, moves drivers toward their destinations and serves their
// positions as a tracking.Source. A Pusher can replay the same fixes over
// MQTT like the driver app would.
package simulator

import (
	"fmt"

	"github.com/kilianp07/geodispatch/core/model"
)

// Config holds parameters for the simulator.
type Config struct {
	Drivers    int              `json:"drivers"`
	Deliveries int              `json:"deliveries"`
	Center     model.Coordinate `json:"center"`
	// SpreadM is the radius drivers and destinations are scattered in.
	SpreadM   float64      `json:"spread_m"`
	SpeedMPS  float64      `json:"speed_mps"`
	JitterM   float64      `json:"jitter_m"`
	AccuracyM float64      `json:"accuracy_m"`
	MaxLoad   int          `json:"max_load"`
	Zones     []model.Zone `json:"zones"`
	// OrderIntervalSeconds adds one delivery per interval while running.
	// Zero disables order generation after seeding.
	OrderIntervalSeconds int   `json:"order_interval_seconds"`
	PushIntervalSeconds  int   `json:"push_interval_seconds"`
	Seed                 int64 `json:"seed"`
}

// SetDefaults fills a small fleet around downtown Austin.
func (c *Config) SetDefaults() {
	if c.Drivers == 0 {
		c.Drivers = 5
	}
	if c.Deliveries == 0 {
		c.Deliveries = 3
	}
	if c.Center == (model.Coordinate{}) {
		c.Center = model.Coordinate{Lat: 30.2672, Lng: -97.7431}
	}
	if c.SpreadM == 0 {
		c.SpreadM = 4000
	}
	if c.SpeedMPS == 0 {
		c.SpeedMPS = 9
	}
	if c.AccuracyM == 0 {
		c.AccuracyM = 10
	}
	if c.MaxLoad == 0 {
		c.MaxLoad = 2
	}
	if len(c.Zones) == 0 {
		c.Zones = []model.Zone{"north", "central", "south"}
	}
	if c.PushIntervalSeconds == 0 {
		c.PushIntervalSeconds = 5
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// Validate checks the settings after defaults were applied.
func (c Config) Validate() error {
	if c.Drivers < 0 || c.Deliveries < 0 {
		return fmt.Errorf("simulator counts must not be negative")
	}
	if c.SpeedMPS < 0 || c.SpreadM < 0 || c.JitterM < 0 {
		return fmt.Errorf("simulator distances must not be negative")
	}
	return c.Center.Validate()
}
