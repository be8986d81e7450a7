// Package kafka forwards core events to Kafka topics.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/infra/logger"
)

// Config configures the Kafka producer.
type Config struct {
	// Brokers is a comma separated host:port list.
	Brokers string `json:"brokers"`
	// Topic receives every event. When empty each event goes to
	// "<topic_prefix><event topic>".
	Topic       string `json:"topic"`
	TopicPrefix string `json:"topic_prefix"`
	MaxRetries  int    `json:"max_retries"`
	TimeoutMS   int    `json:"timeout_ms"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "geodispatch."
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.TimeoutMS <= 0 {
		c.TimeoutMS = 30000
	}
}

// Producer implements events.Sink with a synchronous producer. Messages are
// keyed by delivery or subject so per-entity ordering holds within a
// partition.
type Producer struct {
	producer sarama.SyncProducer
	cfg      Config
	log      logger.Logger
}

// NewProducer connects to the brokers in cfg.
func NewProducer(cfg Config) (*Producer, error) {
	cfg.SetDefaults()
	if strings.TrimSpace(cfg.Brokers) == "" {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	sc := sarama.NewConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = cfg.MaxRetries
	sc.Producer.Retry.Backoff = 100 * time.Millisecond
	sc.Producer.Return.Successes = true
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	sc.Net.DialTimeout = timeout
	sc.Net.ReadTimeout = timeout
	sc.Net.WriteTimeout = timeout

	p, err := sarama.NewSyncProducer(strings.Split(cfg.Brokers, ","), sc)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return newProducer(p, cfg), nil
}

func newProducer(p sarama.SyncProducer, cfg Config) *Producer {
	cfg.SetDefaults()
	return &Producer{producer: p, cfg: cfg, log: logger.New("kafka")}
}

// TopicFor returns the Kafka topic for an event topic.
func (p *Producer) TopicFor(topic string) string {
	if p.cfg.Topic != "" {
		return p.cfg.Topic
	}
	return p.cfg.TopicPrefix + topic
}

// Send writes env as JSON.
func (p *Producer) Send(ctx context.Context, env events.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := &sarama.ProducerMessage{
		Topic:     p.TopicFor(env.Topic),
		Value:     sarama.ByteEncoder(data),
		Timestamp: env.Time,
		Headers:   []sarama.RecordHeader{{Key: []byte("event"), Value: []byte(env.Topic)}},
	}
	if key := messageKey(env.Payload); key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka send %s: %w", msg.Topic, err)
	}
	p.log.Debugw("event produced", map[string]any{"topic": msg.Topic, "partition": partition, "offset": offset})
	return nil
}

func messageKey(payload json.RawMessage) string {
	var ids struct {
		DeliveryID string `json:"delivery_id"`
		SubjectID  string `json:"subject_id"`
		Sample     struct {
			SubjectID string `json:"subject_id"`
		} `json:"sample"`
	}
	if err := json.Unmarshal(payload, &ids); err != nil {
		return ""
	}
	switch {
	case ids.DeliveryID != "":
		return ids.DeliveryID
	case ids.SubjectID != "":
		return ids.SubjectID
	default:
		return ids.Sample.SubjectID
	}
}

// Close flushes and closes the producer.
func (p *Producer) Close() error { return p.producer.Close() }
