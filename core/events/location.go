package events

import (
	"time"

	"github.com/kilianp07/geodispatch/core/model"
)

// GeofenceEvent reports a subject crossing a zone boundary.
type GeofenceEvent struct {
	Entered   bool             `json:"entered"`
	SubjectID string           `json:"subject_id"`
	ZoneID    string           `json:"zone_id"`
	ZoneName  string           `json:"zone_name"`
	Kind      model.ZoneKind   `json:"kind"`
	DistanceM float64          `json:"distance_m"`
	Position  model.Coordinate `json:"position"`
	Time      time.Time        `json:"time"`
}

func (e GeofenceEvent) Topic() string {
	if e.Entered {
		return TopicGeofenceEntered
	}
	return TopicGeofenceExited
}

// LocationUpdated is emitted for each accepted, throttled sample.
type LocationUpdated struct {
	Sample        model.LocationSample `json:"sample"`
	InServiceArea bool                 `json:"in_service_area"`
}

func (LocationUpdated) Topic() string { return TopicLocationUpdated }

// LocationUnavailable is emitted when the fallback ladder is exhausted or
// permission was denied.
type LocationUnavailable struct {
	SubjectID string    `json:"subject_id"`
	Reason    string    `json:"reason"`
	Terminal  bool      `json:"terminal"`
	Time      time.Time `json:"time"`
}

func (LocationUnavailable) Topic() string { return TopicLocationUnavailable }
