package simulator

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/kilianp07/geodispatch/core/tracking"
	"github.com/kilianp07/geodispatch/infra/logger"
)

// FixPublisher is the subset of the MQTT client the pusher needs.
type FixPublisher interface {
	Publish(topic string, qos byte, payload []byte) error
}

// Pusher publishes every subject's position on "<prefix>/<subject_id>" the
// way the driver app does.
type Pusher struct {
	src      *Source
	pub      FixPublisher
	prefix   string
	interval time.Duration
	log      logger.Logger
}

// NewPusher returns a pusher for src.
func NewPusher(src *Source, pub FixPublisher, prefix string, cfg Config) *Pusher {
	cfg.SetDefaults()
	return &Pusher{
		src:      src,
		pub:      pub,
		prefix:   strings.TrimSuffix(prefix, "/"),
		interval: time.Duration(cfg.PushIntervalSeconds) * time.Second,
		log:      logger.New("simulator"),
	}
}

type pushedFix struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	AccuracyM float64  `json:"accuracy_m"`
	Speed     *float64 `json:"speed,omitempty"`
	TS        int64    `json:"ts"`
}

// PushOnce publishes one fix per subject.
func (p *Pusher) PushOnce(ctx context.Context) {
	for _, id := range p.src.Subjects() {
		fix, err := p.src.Acquire(ctx, id, tracking.AcquireOptions{HighAccuracy: true})
		if err != nil {
			p.log.Debugf("skip %s: %v", id, err)
			continue
		}
		payload, err := json.Marshal(pushedFix{
			Lat:       fix.Position.Lat,
			Lng:       fix.Position.Lng,
			AccuracyM: fix.AccuracyM,
			Speed:     fix.Speed,
			TS:        fix.Timestamp.UnixMilli(),
		})
		if err != nil {
			p.log.Errorf("marshal fix: %v", err)
			continue
		}
		if err := p.pub.Publish(p.prefix+"/"+id, 0, payload); err != nil {
			p.log.Warnf("push fix for %s: %v", id, err)
		}
	}
}

// Run pushes until ctx is done.
func (p *Pusher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.PushOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}
