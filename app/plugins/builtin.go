package plugins

import (
	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/factory"
	"github.com/kilianp07/geodispatch/infra/kafka"
	"github.com/kilianp07/geodispatch/infra/mqtt"
	"github.com/kilianp07/geodispatch/infra/redis"
	"github.com/kilianp07/geodispatch/infra/websocket"

	// metrics sinks register themselves with core/metrics.
	_ "github.com/kilianp07/geodispatch/infra/metrics"
)

func init() {
	_ = RegisterTransport("mqtt", func(conf map[string]any) (events.Sink, error) {
		var c mqtt.Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		c.SetDefaults()
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return mqtt.NewPublisher(c)
	})
	_ = RegisterTransport("redis", func(conf map[string]any) (events.Sink, error) {
		var c redis.Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return redis.NewPublisher(c)
	})
	_ = RegisterTransport("kafka", func(conf map[string]any) (events.Sink, error) {
		var c kafka.Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return kafka.NewProducer(c)
	})
	_ = RegisterTransport("websocket", func(conf map[string]any) (events.Sink, error) {
		var c websocket.Config
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return websocket.NewHub(c), nil
	})
}
