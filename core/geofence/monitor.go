// Package geofence keeps a per (subject, zone) inside/outside state and
// publishes entered and exited events on transitions.
package geofence

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/geo"
	"github.com/kilianp07/geodispatch/core/logger"
	"github.com/kilianp07/geodispatch/core/model"
)

// State is the last evaluation of a subject against a zone.
type State struct {
	Inside    bool
	DistanceM float64
	At        time.Time
}

type key struct {
	subject string
	zone    string
}

// Monitor evaluates location samples against registered zones.
type Monitor struct {
	pub events.Publisher
	log logger.Logger

	mu    sync.Mutex
	zones map[string]model.GeofenceZone
	state map[key]State
	last  map[string]model.LocationSample
}

// NewMonitor creates an empty monitor.
func NewMonitor(pub events.Publisher, log logger.Logger) *Monitor {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	return &Monitor{
		pub:   pub,
		log:   logger.OrNop(log),
		zones: make(map[string]model.GeofenceZone),
		state: make(map[key]State),
		last:  make(map[string]model.LocationSample),
	}
}

// AddZone registers or replaces a zone. Subjects with a known position are
// evaluated against it right away.
func (m *Monitor) AddZone(z model.GeofenceZone) error {
	if err := z.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.zones[z.ID]; ok {
		m.dropZoneState(z.ID)
	}
	m.zones[z.ID] = z
	subjects := make([]string, 0, len(m.last))
	for id := range m.last {
		subjects = append(subjects, id)
	}
	sort.Strings(subjects)
	for _, id := range subjects {
		m.evaluate(z, m.last[id])
	}
	return nil
}

// RemoveZone drops a zone and all states attached to it.
func (m *Monitor) RemoveZone(zoneID string) {
	m.mu.Lock()
	delete(m.zones, zoneID)
	m.dropZoneState(zoneID)
	m.mu.Unlock()
}

func (m *Monitor) dropZoneState(zoneID string) {
	for k := range m.state {
		if k.zone == zoneID {
			delete(m.state, k)
		}
	}
}

// Zone returns a registered zone.
func (m *Monitor) Zone(zoneID string) (model.GeofenceZone, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	z, ok := m.zones[zoneID]
	return z, ok
}

// Zones lists registered zones ordered by identifier.
func (m *Monitor) Zones() []model.GeofenceZone {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.GeofenceZone, 0, len(m.zones))
	for _, z := range m.zones {
		out = append(out, z)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Observe evaluates s against every zone active at the sample time and
// returns the transitions it produced. Samples older than the last observed
// one for the same subject are ignored.
func (m *Monitor) Observe(s model.LocationSample) ([]events.GeofenceEvent, error) {
	if s.SubjectID == "" {
		return nil, fmt.Errorf("sample without subject")
	}
	if err := s.Position.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.last[s.SubjectID]; ok && s.Timestamp.Before(prev.Timestamp) {
		m.log.Debugf("out of order sample for %s ignored", s.SubjectID)
		return nil, nil
	}
	m.last[s.SubjectID] = s
	ids := make([]string, 0, len(m.zones))
	for id := range m.zones {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []events.GeofenceEvent
	for _, id := range ids {
		if ev, ok := m.evaluate(m.zones[id], s); ok {
			out = append(out, ev)
		}
	}
	return out, nil
}

// HandleSample lets the monitor consume tracker output.
func (m *Monitor) HandleSample(_ context.Context, s model.LocationSample) error {
	_, err := m.Observe(s)
	return err
}

// evaluate updates one pair and publishes a transition. Callers hold m.mu so
// events for a subject leave in observation order.
func (m *Monitor) evaluate(z model.GeofenceZone, s model.LocationSample) (events.GeofenceEvent, bool) {
	if !z.ActiveAt(s.Timestamp) {
		return events.GeofenceEvent{}, false
	}
	d := geo.DistanceMeters(s.Position, z.Center)
	inside := d <= z.RadiusM
	k := key{subject: s.SubjectID, zone: z.ID}
	prev, seen := m.state[k]
	m.state[k] = State{Inside: inside, DistanceM: d, At: s.Timestamp}
	if (seen && prev.Inside == inside) || (!seen && !inside) {
		return events.GeofenceEvent{}, false
	}
	ev := events.GeofenceEvent{
		Entered:   inside,
		SubjectID: s.SubjectID,
		ZoneID:    z.ID,
		ZoneName:  z.Name,
		Kind:      z.Kind,
		DistanceM: d,
		Position:  s.Position,
		Time:      s.Timestamp,
	}
	if inside && z.Kind == model.KindRestricted {
		m.log.Warnf("%s entered restricted zone %s", s.SubjectID, z.ID)
	}
	m.pub.Publish(ev)
	return ev, true
}

// State returns the last evaluation of subject against zone.
func (m *Monitor) State(subjectID, zoneID string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.state[key{subject: subjectID, zone: zoneID}]
	return st, ok
}

// Inside reports the current inside state. Unknown pairs are outside.
func (m *Monitor) Inside(subjectID, zoneID string) bool {
	st, ok := m.State(subjectID, zoneID)
	return ok && st.Inside
}

// CurrentDistance returns the last distance rounded to whole meters for
// display.
func (m *Monitor) CurrentDistance(subjectID, zoneID string) (float64, bool) {
	st, ok := m.State(subjectID, zoneID)
	if !ok {
		return 0, false
	}
	return math.Round(st.DistanceM), true
}

// Forget drops every state and the last sample of a subject.
func (m *Monitor) Forget(subjectID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.last, subjectID)
	for k := range m.state {
		if k.subject == subjectID {
			delete(m.state, k)
		}
	}
}
