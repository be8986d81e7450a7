package metrics

import (
	"time"

	"github.com/kilianp07/geodispatch/core/model"
)

// AssignmentEvent describes one committed delivery assignment.
type AssignmentEvent struct {
	DeliveryID string
	DriverID   string
	Zone       model.Zone
	Priority   model.Priority
	Score      float64
	Manual     bool
	// Wait is the delivery age at commit time.
	Wait time.Duration
	Time time.Time
}

// MetricsSink records dispatch assignments for observability purposes.
type MetricsSink interface {
	RecordAssignment(ev AssignmentEvent) error
}

// TickEvent summarizes one dispatch engine tick.
type TickEvent struct {
	Duration  time.Duration
	Pending   int
	Escalated int
	Assigned  int
	Conflicts int
	Hints     int
	Advised   int
	Time      time.Time
}

// TickRecorder records tick summaries.
type TickRecorder interface {
	RecordTick(ev TickEvent) error
}

// FleetLoadEvent captures load statistics over online drivers.
type FleetLoadEvent struct {
	Online     int
	Overloaded int
	MeanLoad   float64
	StdDevLoad float64
	Time       time.Time
}

// FleetLoadRecorder records fleet load statistics.
type FleetLoadRecorder interface {
	RecordFleetLoad(ev FleetLoadEvent) error
}

// LocationEvent describes an accepted location fix.
type LocationEvent struct {
	SubjectID     string
	AccuracyM     float64
	InServiceArea bool
	Time          time.Time
}

// LocationRecorder records accepted location fixes.
type LocationRecorder interface {
	RecordLocation(ev LocationEvent) error
}

// GeofenceTransitionEvent describes an entered or exited transition.
type GeofenceTransitionEvent struct {
	SubjectID string
	ZoneID    string
	Kind      model.ZoneKind
	Entered   bool
	DistanceM float64
	Time      time.Time
}

// GeofenceRecorder records geofence transitions.
type GeofenceRecorder interface {
	RecordGeofenceTransition(ev GeofenceTransitionEvent) error
}

// CompletionEvent records a completion attempt at the delivery gate.
type CompletionEvent struct {
	DeliveryID string
	DriverID   string
	Delivered  bool
	Reason     string
	DistanceM  float64
	Time       time.Time
}

// CompletionRecorder records completion attempts.
type CompletionRecorder interface {
	RecordCompletion(ev CompletionEvent) error
}

// NopSink discards all metrics.
type NopSink struct{}

func (NopSink) RecordAssignment(AssignmentEvent) error                 { return nil }
func (NopSink) RecordTick(TickEvent) error                             { return nil }
func (NopSink) RecordFleetLoad(FleetLoadEvent) error                   { return nil }
func (NopSink) RecordLocation(LocationEvent) error                     { return nil }
func (NopSink) RecordGeofenceTransition(GeofenceTransitionEvent) error { return nil }
func (NopSink) RecordCompletion(CompletionEvent) error                 { return nil }
