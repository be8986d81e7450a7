package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	TopicGeofenceEntered     = "geofence.entered"
	TopicGeofenceExited      = "geofence.exited"
	TopicLocationUpdated     = "location.updated"
	TopicLocationUnavailable = "location.unavailable"
	TopicDeliveryAssigned    = "delivery.assigned"
	TopicPriorityEscalated   = "delivery.priority_escalated"
	TopicStatusChanged       = "delivery.status_changed"
	TopicDeliveryDelivered   = "delivery.delivered"
	TopicGeofenceViolation   = "delivery.geofence_violation"
	TopicRouteOptimized      = "delivery.route_optimized"
)

// Event is implemented by every core event.
type Event interface {
	Topic() string
}

// Publisher accepts events without blocking the caller.
type Publisher interface {
	Publish(Event)
}

// NopPublisher drops all events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}

// Envelope is the wire representation handed to transports.
type Envelope struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// Wrap serializes e into an Envelope with a fresh identifier.
func Wrap(e Event, now time.Time) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: uuid.NewString(), Topic: e.Topic(), Time: now.UTC(), Payload: payload}, nil
}
