package events

import (
	"time"

	"github.com/kilianp07/geodispatch/core/model"
)

// DeliveryAssigned is emitted after an assignment commit.
type DeliveryAssigned struct {
	DeliveryID string    `json:"delivery_id"`
	DriverID   string    `json:"driver_id"`
	Score      float64   `json:"score"`
	Manual     bool      `json:"manual"`
	Time       time.Time `json:"time"`
}

func (DeliveryAssigned) Topic() string { return TopicDeliveryAssigned }

// PriorityEscalated is emitted when a delivery ages into a higher priority.
type PriorityEscalated struct {
	DeliveryID string         `json:"delivery_id"`
	From       model.Priority `json:"from"`
	To         model.Priority `json:"to"`
	Age        time.Duration  `json:"age"`
	Time       time.Time      `json:"time"`
}

func (PriorityEscalated) Topic() string { return TopicPriorityEscalated }

// StatusChanged reports a driver-side status transition.
type StatusChanged struct {
	DeliveryID string       `json:"delivery_id"`
	DriverID   string       `json:"driver_id,omitempty"`
	From       model.Status `json:"from"`
	To         model.Status `json:"to"`
	Time       time.Time    `json:"time"`
}

func (StatusChanged) Topic() string { return TopicStatusChanged }

// DeliveryDelivered is emitted once the gate lets a delivery complete.
type DeliveryDelivered struct {
	DeliveryID string    `json:"delivery_id"`
	DriverID   string    `json:"driver_id"`
	DistanceM  float64   `json:"distance_m"`
	Time       time.Time `json:"time"`
}

func (DeliveryDelivered) Topic() string { return TopicDeliveryDelivered }

// GeofenceViolation is emitted when completion is attempted outside the zone.
type GeofenceViolation struct {
	DeliveryID string    `json:"delivery_id"`
	DriverID   string    `json:"driver_id"`
	DistanceM  float64   `json:"distance_m"`
	RadiusM    float64   `json:"radius_m"`
	Reason     string    `json:"reason"`
	Time       time.Time `json:"time"`
}

func (GeofenceViolation) Topic() string { return TopicGeofenceViolation }

// RouteOptimized reports the advisory ETA reduction.
type RouteOptimized struct {
	DeliveryID string        `json:"delivery_id"`
	Before     time.Duration `json:"before"`
	After      time.Duration `json:"after"`
	Time       time.Time     `json:"time"`
}

func (RouteOptimized) Topic() string { return TopicRouteOptimized }
