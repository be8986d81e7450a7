// Package eventbus provides the in-process fan-out used between the core
// components and the outbound transports.
package eventbus

import "github.com/kilianp07/geodispatch/core/events"

// EventBus carries core events. It satisfies events.Publisher.
type EventBus = TypedBus[events.Event]

// New creates an EventBus whose subscribers buffer up to 64 events.
func New() *EventBus { return NewTypedBuffered[events.Event](64) }
