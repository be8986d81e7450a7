package tracking

import (
	"fmt"
	"time"

	"github.com/kilianp07/geodispatch/core/model"
)

// LadderStep is one rung of the acquisition fallback ladder.
type LadderStep struct {
	HighAccuracy   bool `json:"high_accuracy"`
	TimeoutSeconds int  `json:"timeout_seconds"`
	MaxAgeSeconds  int  `json:"max_age_seconds"`
}

func (s LadderStep) options() AcquireOptions {
	return AcquireOptions{
		HighAccuracy: s.HighAccuracy,
		Timeout:      time.Duration(s.TimeoutSeconds) * time.Second,
		MaxAge:       time.Duration(s.MaxAgeSeconds) * time.Second,
	}
}

// ServiceArea is the circle samples are checked against.
type ServiceArea struct {
	Center  model.Coordinate `json:"center"`
	RadiusM float64          `json:"radius_m"`
}

// Config holds tracker settings.
type Config struct {
	PollIntervalSeconds      int          `json:"poll_interval_seconds"`
	MinIntervalSeconds       int          `json:"min_interval_seconds"`
	PermissionTimeoutSeconds int          `json:"permission_timeout_seconds"`
	StaleAfterSeconds        int          `json:"stale_after_seconds"`
	Ladder                   []LadderStep `json:"ladder"`
	ServiceArea              *ServiceArea `json:"service_area"`
}

// DefaultLadder tries a precise fix first, then a coarse one.
func DefaultLadder() []LadderStep {
	return []LadderStep{
		{HighAccuracy: true, TimeoutSeconds: 15, MaxAgeSeconds: 5},
		{HighAccuracy: false, TimeoutSeconds: 20, MaxAgeSeconds: 60},
	}
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = 2
	}
	if c.MinIntervalSeconds == 0 {
		c.MinIntervalSeconds = 5
	}
	if c.PermissionTimeoutSeconds == 0 {
		c.PermissionTimeoutSeconds = 10
	}
	if c.StaleAfterSeconds == 0 {
		c.StaleAfterSeconds = 300
	}
	if len(c.Ladder) == 0 {
		c.Ladder = DefaultLadder()
	}
}

// Validate checks the settings after defaults were applied.
func (c Config) Validate() error {
	if c.PollIntervalSeconds < 0 || c.MinIntervalSeconds < 0 {
		return fmt.Errorf("tracking intervals must not be negative")
	}
	for i, s := range c.Ladder {
		if s.TimeoutSeconds <= 0 {
			return fmt.Errorf("ladder step %d: timeout must be positive", i)
		}
		if s.MaxAgeSeconds < 0 {
			return fmt.Errorf("ladder step %d: max age must not be negative", i)
		}
	}
	if c.ServiceArea != nil {
		if c.ServiceArea.RadiusM <= 0 {
			return fmt.Errorf("service area radius must be positive")
		}
		if err := c.ServiceArea.Center.Validate(); err != nil {
			return fmt.Errorf("service area: %w", err)
		}
	}
	return nil
}
