package geofence

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/model"
)

type recorder struct {
	mu     sync.Mutex
	events []events.GeofenceEvent
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ge, ok := e.(events.GeofenceEvent); ok {
		r.events = append(r.events, ge)
	}
}

var (
	dest   = model.Coordinate{Lat: 30.2672, Lng: -97.7431}
	near   = model.Coordinate{Lat: 30.2673, Lng: -97.7431}
	far    = model.Coordinate{Lat: 30.2700, Lng: -97.7431}
	t0     = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	zoneD1 = model.GeofenceZone{ID: "delivery:d1", Name: "d1", Center: dest, RadiusM: 100, Kind: model.KindDelivery}
)

func sample(pos model.Coordinate, sec int) model.LocationSample {
	return model.LocationSample{SubjectID: "drv1", Position: pos, Timestamp: t0.Add(time.Duration(sec) * time.Second)}
}

func TestTransitionsOnlyOnChange(t *testing.T) {
	pub := &recorder{}
	m := NewMonitor(pub, nil)
	require.NoError(t, m.AddZone(zoneD1))

	steps := []model.Coordinate{far, far, near, near, dest, far, far, near}
	for i, p := range steps {
		_, err := m.Observe(sample(p, i))
		require.NoError(t, err)
	}
	require.Len(t, pub.events, 3)
	assert.True(t, pub.events[0].Entered)
	assert.False(t, pub.events[1].Entered)
	assert.True(t, pub.events[2].Entered)
	assert.Equal(t, events.TopicGeofenceEntered, pub.events[0].Topic())
	assert.Equal(t, events.TopicGeofenceExited, pub.events[1].Topic())
}

func TestFirstObservationInsideEmitsEntered(t *testing.T) {
	pub := &recorder{}
	m := NewMonitor(pub, nil)
	require.NoError(t, m.AddZone(zoneD1))
	evs, err := m.Observe(sample(near, 0))
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.True(t, evs[0].Entered)
	assert.InDelta(t, 11.1, evs[0].DistanceM, 0.5)
}

func TestFirstObservationOutsideIsSilent(t *testing.T) {
	pub := &recorder{}
	m := NewMonitor(pub, nil)
	require.NoError(t, m.AddZone(zoneD1))
	evs, err := m.Observe(sample(far, 0))
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.False(t, m.Inside("drv1", zoneD1.ID))
	d, ok := m.CurrentDistance("drv1", zoneD1.ID)
	require.True(t, ok)
	assert.Equal(t, 311.0, d)
}

func TestGapKeepsLastState(t *testing.T) {
	m := NewMonitor(nil, nil)
	require.NoError(t, m.AddZone(zoneD1))
	_, _ = m.Observe(sample(near, 0))
	assert.True(t, m.Inside("drv1", zoneD1.ID))
	// no samples for an hour
	assert.True(t, m.Inside("drv1", zoneD1.ID))
	_, _ = m.Observe(sample(near, 3600))
	assert.True(t, m.Inside("drv1", zoneD1.ID))
}

func TestZoneOutsideWindowIsSkipped(t *testing.T) {
	pub := &recorder{}
	m := NewMonitor(pub, nil)
	z := zoneD1
	z.Window = &model.TimeWindow{Start: t0.Add(time.Hour)}
	require.NoError(t, m.AddZone(z))
	_, _ = m.Observe(sample(dest, 0))
	assert.Empty(t, pub.events)
	_, ok := m.State("drv1", z.ID)
	assert.False(t, ok)

	_, _ = m.Observe(sample(dest, 3600))
	require.Len(t, pub.events, 1)
}

func TestOutOfOrderSampleIgnored(t *testing.T) {
	pub := &recorder{}
	m := NewMonitor(pub, nil)
	require.NoError(t, m.AddZone(zoneD1))
	_, _ = m.Observe(sample(near, 10))
	evs, err := m.Observe(sample(far, 5))
	require.NoError(t, err)
	assert.Empty(t, evs)
	assert.True(t, m.Inside("drv1", zoneD1.ID))
}

func TestAddZoneEvaluatesKnownPositions(t *testing.T) {
	pub := &recorder{}
	m := NewMonitor(pub, nil)
	_, _ = m.Observe(sample(dest, 0))
	require.NoError(t, m.AddZone(zoneD1))
	require.Len(t, pub.events, 1)
	assert.True(t, m.Inside("drv1", zoneD1.ID))
}

func TestRemoveZoneAndForget(t *testing.T) {
	m := NewMonitor(nil, nil)
	require.NoError(t, m.AddZone(zoneD1))
	_, _ = m.Observe(sample(dest, 0))
	m.RemoveZone(zoneD1.ID)
	_, ok := m.State("drv1", zoneD1.ID)
	assert.False(t, ok)
	assert.Empty(t, m.Zones())

	require.NoError(t, m.AddZone(zoneD1))
	assert.True(t, m.Inside("drv1", zoneD1.ID))
	m.Forget("drv1")
	assert.False(t, m.Inside("drv1", zoneD1.ID))
}

func TestObserveRejectsInvalidSample(t *testing.T) {
	m := NewMonitor(nil, nil)
	_, err := m.Observe(model.LocationSample{Position: dest})
	assert.Error(t, err)
	_, err = m.Observe(model.LocationSample{SubjectID: "x", Position: model.Coordinate{Lat: 120}})
	assert.Error(t, err)
	assert.Error(t, m.AddZone(model.GeofenceZone{ID: "z", RadiusM: 0, Kind: model.KindPickup}))
}
