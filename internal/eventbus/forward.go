package eventbus

import (
	"context"
	"time"

	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/logger"
	"github.com/kilianp07/geodispatch/core/monitoring"
)

// Forwarder relays every bus event to the configured transports. A failing
// sink is logged and skipped; it never holds up the others.
type Forwarder struct {
	sub   <-chan events.Event
	bus   *EventBus
	sinks []events.Sink
	log   logger.Logger
	now   func() time.Time
	done  chan struct{}
}

// NewForwarder subscribes to bus immediately so no event published after the
// call is missed.
func NewForwarder(bus *EventBus, log logger.Logger, sinks ...events.Sink) *Forwarder {
	return &Forwarder{
		sub:   bus.Subscribe(),
		bus:   bus,
		sinks: sinks,
		log:   logger.OrNop(log),
		now:   time.Now,
		done:  make(chan struct{}),
	}
}

// Run forwards until ctx is cancelled or the bus is closed.
func (f *Forwarder) Run(ctx context.Context) {
	defer close(f.done)
	defer monitoring.Recover()
	for {
		select {
		case <-ctx.Done():
			f.bus.Unsubscribe(f.sub)
			return
		case e, ok := <-f.sub:
			if !ok {
				return
			}
			f.forward(ctx, e)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, e events.Event) {
	env, err := events.Wrap(e, f.now())
	if err != nil {
		f.log.Errorf("wrap %s: %v", e.Topic(), err)
		return
	}
	for _, s := range f.sinks {
		if err := s.Send(ctx, env); err != nil {
			f.log.Warnf("forward %s: %v", env.Topic, err)
		}
	}
}

// Wait blocks until Run has returned.
func (f *Forwarder) Wait() { <-f.done }

// Close closes every sink.
func (f *Forwarder) Close() error {
	var first error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
