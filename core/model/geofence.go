package model

import (
	"fmt"
	"time"
)

// ZoneKind classifies a geofence.
type ZoneKind string

const (
	KindDelivery   ZoneKind = "delivery_zone"
	KindPickup     ZoneKind = "pickup_zone"
	KindRestricted ZoneKind = "restricted_zone"
)

// TimeWindow bounds when a zone is active. A zero Start or End leaves that
// side open.
type TimeWindow struct {
	Start time.Time `json:"start" yaml:"start"`
	End   time.Time `json:"end" yaml:"end"`
}

// Contains reports whether t falls inside the window, end exclusive.
func (w TimeWindow) Contains(t time.Time) bool {
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && !t.Before(w.End) {
		return false
	}
	return true
}

// GeofenceZone is a circular region used to detect physical presence.
type GeofenceZone struct {
	ID      string      `json:"id" yaml:"id"`
	Name    string      `json:"name" yaml:"name"`
	Center  Coordinate  `json:"center" yaml:"center"`
	RadiusM float64     `json:"radius_m" yaml:"radius_m"`
	Kind    ZoneKind    `json:"kind" yaml:"kind"`
	Window  *TimeWindow `json:"window,omitempty" yaml:"window,omitempty"`
}

// ActiveAt reports whether the zone is evaluated at t.
func (z GeofenceZone) ActiveAt(t time.Time) bool {
	return z.Window == nil || z.Window.Contains(t)
}

// Validate checks the zone definition.
func (z GeofenceZone) Validate() error {
	if z.ID == "" {
		return fmt.Errorf("zone id is required")
	}
	if z.RadiusM <= 0 {
		return fmt.Errorf("zone %s: radius must be positive", z.ID)
	}
	switch z.Kind {
	case KindDelivery, KindPickup, KindRestricted:
	default:
		return fmt.Errorf("zone %s: unknown kind %q", z.ID, z.Kind)
	}
	return z.Center.Validate()
}

// DeliveryZoneID returns the identifier of the completion zone attached to a
// delivery.
func DeliveryZoneID(deliveryID string) string { return deliveryZonePrefix + deliveryID }

const deliveryZonePrefix = "delivery:"
