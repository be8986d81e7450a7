package model

import "fmt"

// Zone is a coarse named region used for eligibility and scoring.
type Zone string

// Driver is a member of the delivery roster.
type Driver struct {
	ID     string `json:"id" yaml:"id"`
	Zone   Zone   `json:"zone" yaml:"zone"`
	Online bool   `json:"online" yaml:"online"`
	// Rating is the customer rating between 0 and 5.
	Rating float64 `json:"rating" yaml:"rating"`
	// Efficiency is a performance multiplier between 0 and 1.
	Efficiency   float64 `json:"efficiency" yaml:"efficiency"`
	BatteryLevel float64 `json:"battery_level" yaml:"battery_level"`
	CurrentLoad  int     `json:"current_load" yaml:"current_load"`
	MaxLoad      int     `json:"max_load" yaml:"max_load"`

	LastKnownLocation *LocationSample `json:"last_known_location,omitempty" yaml:"last_known_location,omitempty"`
}

// Validate checks the roster invariants of a driver record.
func (d Driver) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("driver id is required")
	}
	if d.MaxLoad <= 0 {
		return fmt.Errorf("driver %s: max load must be positive", d.ID)
	}
	if d.CurrentLoad < 0 || d.CurrentLoad > d.MaxLoad {
		return fmt.Errorf("driver %s: load %d outside [0,%d]", d.ID, d.CurrentLoad, d.MaxLoad)
	}
	if d.Rating < 0 || d.Rating > 5 {
		return fmt.Errorf("driver %s: rating %.2f outside [0,5]", d.ID, d.Rating)
	}
	if d.Efficiency < 0 || d.Efficiency > 1 {
		return fmt.Errorf("driver %s: efficiency %.2f outside [0,1]", d.ID, d.Efficiency)
	}
	if d.BatteryLevel < 0 || d.BatteryLevel > 100 {
		return fmt.Errorf("driver %s: battery %.1f outside [0,100]", d.ID, d.BatteryLevel)
	}
	return nil
}

// SpareCapacity returns the number of additional deliveries the driver can take.
func (d Driver) SpareCapacity() int {
	if d.CurrentLoad >= d.MaxLoad {
		return 0
	}
	return d.MaxLoad - d.CurrentLoad
}
