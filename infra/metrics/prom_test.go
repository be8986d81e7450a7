package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/factory"
	coremetrics "github.com/kilianp07/geodispatch/core/metrics"
	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/internal/eventbus"
)

func TestPromSinkRecordsAssignments(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordAssignment(coremetrics.AssignmentEvent{Zone: "north", Priority: model.PriorityHigh, Score: 85, Wait: time.Hour}))
	require.NoError(t, sink.RecordAssignment(coremetrics.AssignmentEvent{Zone: "north", Priority: model.PriorityHigh, Manual: true}))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.assignments.WithLabelValues("north", "high", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.assignments.WithLabelValues("north", "high", "true")))

	require.NoError(t, sink.RecordFleetLoad(coremetrics.FleetLoadEvent{Online: 3, Overloaded: 1, MeanLoad: 1.5, StdDevLoad: 0.5}))
	assert.Equal(t, 3.0, testutil.ToFloat64(sink.online))
	assert.Equal(t, 0.5, testutil.ToFloat64(sink.loadStdDev))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, second.RecordCompletion(coremetrics.CompletionEvent{Delivered: true}))
	assert.Equal(t, 1.0, testutil.ToFloat64(first.completions.WithLabelValues("delivered", "")))
}

func TestEventCollectorMapsBusEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	bus := eventbus.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartEventCollector(ctx, bus, sink)

	bus.Publish(events.LocationUpdated{Sample: model.LocationSample{SubjectID: "drv1", AccuracyM: 8}, InServiceArea: true})
	bus.Publish(events.GeofenceEvent{Entered: true, SubjectID: "drv1", Kind: model.KindDelivery})
	bus.Publish(events.GeofenceEvent{SubjectID: "drv1", Kind: model.KindDelivery})
	bus.Publish(events.GeofenceViolation{DeliveryID: "d1", Reason: "outside_zone", DistanceM: 311})
	bus.Publish(events.DeliveryDelivered{DeliveryID: "d1"})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(sink.completions.WithLabelValues("delivered", "")) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.fixes.WithLabelValues("true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.transitions.WithLabelValues("delivery_zone", "entered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.transitions.WithLabelValues("delivery_zone", "exited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.completions.WithLabelValues("rejected", "outside_zone")))
}

func TestFactoryBuildsSinks(t *testing.T) {
	s, err := coremetrics.NewMetricsSink(nil)
	require.NoError(t, err)
	assert.IsType(t, coremetrics.NopSink{}, s)
	_, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}, {Type: "nop"}})
	require.NoError(t, err)
	_, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "graphite"}})
	assert.Error(t, err)
}
