package metrics

import (
	"context"

	"github.com/kilianp07/geodispatch/core/events"
	coremetrics "github.com/kilianp07/geodispatch/core/metrics"
	"github.com/kilianp07/geodispatch/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// tracking and gate events. Assignments, ticks and fleet load are recorded
// by the dispatch engine itself. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus *eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				record(sink, ev)
			}
		}
	}()
}

func record(sink coremetrics.MetricsSink, ev events.Event) {
	switch e := ev.(type) {
	case events.LocationUpdated:
		if r, ok := sink.(coremetrics.LocationRecorder); ok {
			_ = r.RecordLocation(coremetrics.LocationEvent{
				SubjectID:     e.Sample.SubjectID,
				AccuracyM:     e.Sample.AccuracyM,
				InServiceArea: e.InServiceArea,
				Time:          e.Sample.Timestamp,
			})
		}
	case events.GeofenceEvent:
		if r, ok := sink.(coremetrics.GeofenceRecorder); ok {
			_ = r.RecordGeofenceTransition(coremetrics.GeofenceTransitionEvent{
				SubjectID: e.SubjectID,
				ZoneID:    e.ZoneID,
				Kind:      e.Kind,
				Entered:   e.Entered,
				DistanceM: e.DistanceM,
				Time:      e.Time,
			})
		}
	case events.DeliveryDelivered:
		if r, ok := sink.(coremetrics.CompletionRecorder); ok {
			_ = r.RecordCompletion(coremetrics.CompletionEvent{
				DeliveryID: e.DeliveryID,
				DriverID:   e.DriverID,
				Delivered:  true,
				DistanceM:  e.DistanceM,
				Time:       e.Time,
			})
		}
	case events.GeofenceViolation:
		if r, ok := sink.(coremetrics.CompletionRecorder); ok {
			_ = r.RecordCompletion(coremetrics.CompletionEvent{
				DeliveryID: e.DeliveryID,
				DriverID:   e.DriverID,
				Reason:     e.Reason,
				DistanceM:  e.DistanceM,
				Time:       e.Time,
			})
		}
	}
}
