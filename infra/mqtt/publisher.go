package mqtt

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kilianp07/geodispatch/core/events"
)

// Publisher forwards event envelopes to the broker. It implements events.Sink.
type Publisher struct {
	c      *Client
	prefix string
	qos    byte
	owned  bool
}

// NewPublisher dials the broker and returns a publisher that owns the
// connection.
func NewPublisher(cfg Config) (*Publisher, error) {
	cfg.SetDefaults()
	c, err := Dial(cfg)
	if err != nil {
		return nil, err
	}
	p := NewPublisherWithClient(c, cfg)
	p.owned = true
	return p, nil
}

// NewPublisherWithClient shares an existing connection.
func NewPublisherWithClient(c *Client, cfg Config) *Publisher {
	cfg.SetDefaults()
	return &Publisher{c: c, prefix: strings.TrimSuffix(cfg.EventPrefix, "/"), qos: cfg.qos("events")}
}

// EventTopic maps an event topic onto the MQTT hierarchy.
func (p *Publisher) EventTopic(topic string) string {
	return p.prefix + "/" + strings.ReplaceAll(topic, ".", "/")
}

// Send publishes env as JSON.
func (p *Publisher) Send(ctx context.Context, env events.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.c.Publish(p.EventTopic(env.Topic), p.qos, payload)
}

// Close disconnects when the publisher dialed the connection itself.
func (p *Publisher) Close() error {
	if p.owned {
		p.c.Disconnect()
	}
	return nil
}
