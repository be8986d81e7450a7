package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/tracking"
	"github.com/kilianp07/geodispatch/infra/logger"
)

// LocationSource receives driver fixes pushed by the driver app and, in pull
// or hybrid mode, asks the app for a fresh fix on demand. It implements
// tracking.Source.
type LocationSource struct {
	c       *Client
	mode    string
	request string
	qos     byte
	highAcc float64
	log     logger.Logger
	now     func() time.Time

	mu      sync.Mutex
	latest  map[string]model.LocationSample
	denied  map[string]bool
	waiters map[string]chan struct{}
}

type fixMessage struct {
	SubjectID string   `json:"subject_id"`
	Lat       *float64 `json:"lat"`
	Lng       *float64 `json:"lng"`
	AccuracyM float64  `json:"accuracy_m"`
	Heading   *float64 `json:"heading"`
	Speed     *float64 `json:"speed"`
	// TS is a unix timestamp in milliseconds.
	TS *int64 `json:"ts"`
	// Permission carries "denied" or "granted" when the driver changes the
	// OS location permission.
	Permission string `json:"permission"`
}

type locateRequest struct {
	SubjectID    string `json:"subject_id"`
	HighAccuracy bool   `json:"high_accuracy"`
	MaxAgeMS     int64  `json:"max_age_ms"`
}

// NewLocationSource subscribes to "<location_prefix>/+" on c.
func NewLocationSource(c *Client, cfg Config) (*LocationSource, error) {
	cfg.SetDefaults()
	s := newLocationSource(c, cfg)
	topic := strings.TrimSuffix(cfg.LocationPrefix, "/") + "/+"
	if err := c.Subscribe(topic, cfg.qos("location"), s.onPush); err != nil {
		return nil, err
	}
	return s, nil
}

func newLocationSource(c *Client, cfg Config) *LocationSource {
	return &LocationSource{
		c:       c,
		mode:    strings.ToLower(cfg.Mode),
		request: strings.TrimSuffix(cfg.RequestPrefix, "/"),
		qos:     cfg.qos("request"),
		highAcc: cfg.HighAccuracyM,
		log:     logger.New("mqtt_location"),
		now:     time.Now,
		latest:  make(map[string]model.LocationSample),
		denied:  make(map[string]bool),
		waiters: make(map[string]chan struct{}),
	}
}

func (s *LocationSource) onPush(_ paho.Client, msg paho.Message) {
	if err := s.process(msg.Payload(), msg.Topic()); err != nil {
		s.log.Errorf("location decode: %v", err)
	}
}

func extractID(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) > 0 {
		return parts[len(parts)-1]
	}
	return ""
}

func (s *LocationSource) process(payload []byte, topic string) error {
	var msg fixMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	if msg.SubjectID == "" {
		msg.SubjectID = extractID(topic)
	}
	if msg.SubjectID == "" {
		return fmt.Errorf("fix without subject")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch strings.ToLower(msg.Permission) {
	case "denied":
		s.denied[msg.SubjectID] = true
		s.wakeLocked(msg.SubjectID)
		return nil
	case "granted":
		delete(s.denied, msg.SubjectID)
	}
	if msg.Lat == nil || msg.Lng == nil {
		return nil
	}
	ts := s.now()
	if msg.TS != nil {
		ts = time.UnixMilli(*msg.TS)
	}
	fix := model.LocationSample{
		SubjectID: msg.SubjectID,
		Position:  model.Coordinate{Lat: *msg.Lat, Lng: *msg.Lng},
		AccuracyM: msg.AccuracyM,
		Timestamp: ts,
		Heading:   msg.Heading,
		Speed:     msg.Speed,
	}
	if err := fix.Position.Validate(); err != nil {
		return err
	}
	if prev, ok := s.latest[msg.SubjectID]; ok && ts.Before(prev.Timestamp) {
		return nil
	}
	s.latest[msg.SubjectID] = fix
	s.wakeLocked(msg.SubjectID)
	return nil
}

func (s *LocationSource) wakeLocked(subjectID string) {
	if ch, ok := s.waiters[subjectID]; ok {
		close(ch)
		delete(s.waiters, subjectID)
	}
}

// RequestPermission reports granted while the broker is reachable. Per
// driver denials arrive on the location topic.
func (s *LocationSource) RequestPermission(ctx context.Context) (tracking.Permission, error) {
	if err := ctx.Err(); err != nil {
		return tracking.PermissionUnavailable, err
	}
	if !s.c.Connected() {
		return tracking.PermissionUnavailable, nil
	}
	return tracking.PermissionGranted, nil
}

// Acquire returns the cached fix when it satisfies opts, otherwise waits for
// the next acceptable one until ctx is done.
func (s *LocationSource) Acquire(ctx context.Context, subjectID string, opts tracking.AcquireOptions) (model.LocationSample, error) {
	requested := false
	for {
		s.mu.Lock()
		if s.denied[subjectID] {
			s.mu.Unlock()
			return model.LocationSample{}, tracking.ErrPermissionDenied
		}
		if fix, ok := s.latest[subjectID]; ok && s.acceptable(fix, opts) {
			s.mu.Unlock()
			return fix, nil
		}
		ch, ok := s.waiters[subjectID]
		if !ok {
			ch = make(chan struct{})
			s.waiters[subjectID] = ch
		}
		s.mu.Unlock()

		if !requested && s.mode != "push" {
			requested = true
			if err := s.requestFix(subjectID, opts); err != nil {
				s.log.Warnf("locate request for %s: %v", subjectID, err)
			}
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return model.LocationSample{}, fmt.Errorf("waiting for fix of %s: %w", subjectID, ctx.Err())
		}
	}
}

func (s *LocationSource) acceptable(fix model.LocationSample, opts tracking.AcquireOptions) bool {
	if opts.HighAccuracy && fix.AccuracyM > s.highAcc {
		return false
	}
	return opts.MaxAge <= 0 || fix.Age(s.now()) <= opts.MaxAge
}

func (s *LocationSource) requestFix(subjectID string, opts tracking.AcquireOptions) error {
	payload, err := json.Marshal(locateRequest{
		SubjectID:    subjectID,
		HighAccuracy: opts.HighAccuracy,
		MaxAgeMS:     opts.MaxAge.Milliseconds(),
	})
	if err != nil {
		return err
	}
	return s.c.Publish(s.request+"/"+subjectID, s.qos, payload)
}
