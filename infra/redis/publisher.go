// Package redis forwards core events over Redis pub/sub and keeps the latest
// driver position under a per-subject key.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kilianp07/geodispatch/core/events"
)

// Config configures the Redis transport.
type Config struct {
	URL           string `json:"url"`
	ChannelPrefix string `json:"channel_prefix"`
	// LocationKeyPrefix stores location.updated samples as
	// "<prefix><subject_id>". Empty disables the cache.
	LocationKeyPrefix  string `json:"location_key_prefix"`
	LocationTTLSeconds int    `json:"location_ttl_seconds"`
	TimeoutMS          int    `json:"timeout_ms"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = "redis://localhost:6379/0"
	}
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = "geodispatch:"
	}
	if c.LocationTTLSeconds <= 0 {
		c.LocationTTLSeconds = 600
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 2000
	}
}

type commander interface {
	Publish(ctx context.Context, channel string, message any) *goredis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Close() error
}

// Publisher implements events.Sink.
type Publisher struct {
	rdb     commander
	prefix  string
	locKey  string
	ttl     time.Duration
	timeout time.Duration
}

// NewPublisher parses cfg.URL and connects lazily.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	opt, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	return newPublisher(goredis.NewClient(opt), cfg), nil
}

func newPublisher(rdb commander, cfg Config) *Publisher {
	return &Publisher{
		rdb:     rdb,
		prefix:  cfg.ChannelPrefix,
		locKey:  cfg.LocationKeyPrefix,
		ttl:     time.Duration(cfg.LocationTTLSeconds) * time.Second,
		timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond,
	}
}

// Channel returns the pub/sub channel for an event topic.
func (p *Publisher) Channel(topic string) string { return p.prefix + topic }

// Send publishes env and refreshes the location cache for location updates.
func (p *Publisher) Send(ctx context.Context, env events.Envelope) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.Channel(env.Topic), data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", env.Topic, err)
	}
	if env.Topic != events.TopicLocationUpdated || p.locKey == "" {
		return nil
	}
	var upd events.LocationUpdated
	if err := json.Unmarshal(env.Payload, &upd); err != nil {
		return fmt.Errorf("decode location update: %w", err)
	}
	sample, err := json.Marshal(upd.Sample)
	if err != nil {
		return err
	}
	if err := p.rdb.Set(ctx, p.locKey+upd.Sample.SubjectID, sample, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis set location: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Publisher) Close() error { return p.rdb.Close() }
