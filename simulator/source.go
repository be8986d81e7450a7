package simulator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/geodispatch/core/geo"
	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/tracking"
)

const metersPerDegree = 111320.0

type mover struct {
	pos    model.Coordinate
	target *model.Coordinate
	moved  time.Time
}

// Source moves every placed subject toward its target at a constant speed
// and returns noisy fixes. It implements tracking.Source.
type Source struct {
	speed    float64
	jitter   float64
	accuracy float64
	now      func() time.Time

	mu      sync.Mutex
	rng     *rand.Rand
	subject map[string]*mover
	denied  map[string]bool
}

// NewSource returns an empty source.
func NewSource(cfg Config) *Source {
	cfg.SetDefaults()
	return &Source{
		speed:    cfg.SpeedMPS,
		jitter:   cfg.JitterM,
		accuracy: cfg.AccuracyM,
		now:      time.Now,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		subject:  make(map[string]*mover),
		denied:   make(map[string]bool),
	}
}

// Place puts a subject at c.
func (s *Source) Place(id string, c model.Coordinate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subject[id] = &mover{pos: c, moved: s.now()}
}

// SetTarget sends a placed subject toward c.
func (s *Source) SetTarget(id string, c model.Coordinate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.subject[id]
	if !ok {
		return fmt.Errorf("subject %s not placed", id)
	}
	s.advance(m)
	m.target = &c
	return nil
}

// ClearTarget stops the subject where it is.
func (s *Source) ClearTarget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.subject[id]; ok {
		s.advance(m)
		m.target = nil
	}
}

// Deny makes the next Acquire for id fail with ErrPermissionDenied.
func (s *Source) Deny(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied[id] = true
}

// Position returns the exact position without noise.
func (s *Source) Position(id string) (model.Coordinate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.subject[id]
	if !ok {
		return model.Coordinate{}, false
	}
	s.advance(m)
	return m.pos, true
}

// Subjects lists placed subjects in id order.
func (s *Source) Subjects() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subject))
	for id := range s.subject {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RequestPermission always grants.
func (s *Source) RequestPermission(ctx context.Context) (tracking.Permission, error) {
	if err := ctx.Err(); err != nil {
		return tracking.PermissionUnavailable, err
	}
	return tracking.PermissionGranted, nil
}

// Acquire returns the current position of id with jitter applied.
func (s *Source) Acquire(ctx context.Context, id string, opts tracking.AcquireOptions) (model.LocationSample, error) {
	if err := ctx.Err(); err != nil {
		return model.LocationSample{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.denied[id] {
		return model.LocationSample{}, tracking.ErrPermissionDenied
	}
	m, ok := s.subject[id]
	if !ok {
		return model.LocationSample{}, fmt.Errorf("subject %s not placed", id)
	}
	s.advance(m)
	acc := s.accuracy
	if !opts.HighAccuracy {
		acc *= 4
	}
	pos := m.pos
	if s.jitter > 0 {
		pos = offset(pos, s.rng.NormFloat64()*s.jitter, s.rng.NormFloat64()*s.jitter)
	}
	speed := 0.0
	if m.target != nil {
		speed = s.speed
	}
	return model.LocationSample{SubjectID: id, Position: pos, AccuracyM: acc, Timestamp: m.moved, Speed: &speed}, nil
}

// advance moves m along the straight line to its target for the time
// elapsed since the last move.
func (s *Source) advance(m *mover) {
	now := s.now()
	elapsed := now.Sub(m.moved).Seconds()
	m.moved = now
	if m.target == nil || elapsed <= 0 {
		return
	}
	dist := geo.DistanceMeters(m.pos, *m.target)
	step := s.speed * elapsed
	if dist <= step || dist == 0 {
		m.pos = *m.target
		return
	}
	f := step / dist
	m.pos = model.Coordinate{
		Lat: m.pos.Lat + (m.target.Lat-m.pos.Lat)*f,
		Lng: m.pos.Lng + (m.target.Lng-m.pos.Lng)*f,
	}
}

// offset shifts c by north and east meters.
func offset(c model.Coordinate, northM, eastM float64) model.Coordinate {
	lat := c.Lat + northM/metersPerDegree
	lng := c.Lng + eastM/(metersPerDegree*math.Cos(c.Lat*math.Pi/180))
	return model.Coordinate{Lat: math.Max(-90, math.Min(90, lat)), Lng: lng}
}
