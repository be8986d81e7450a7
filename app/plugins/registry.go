// Package plugins registers the event transports selectable from the
// "transports" configuration section.
package plugins

import (
	"github.com/kilianp07/geodispatch/core/events"
	"github.com/kilianp07/geodispatch/core/factory"
)

var transports = factory.NewRegistry[events.Sink]()

// RegisterTransport adds a transport factory identified by name.
func RegisterTransport(name string, f factory.Factory[events.Sink]) error {
	return transports.Register(name, f)
}

// NewTransport builds one transport from its configuration.
func NewTransport(cfg factory.ModuleConfig) (events.Sink, error) {
	return transports.Create(cfg)
}

// Transports lists the registered transport names.
func Transports() []string { return transports.Names() }
