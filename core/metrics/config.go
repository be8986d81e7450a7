package metrics

import "github.com/kilianp07/geodispatch/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	Sinks      []factory.ModuleConfig `json:"sinks"`
	ListenAddr string                 `json:"listen_addr"`
}

// SetDefaults fills the Prometheus listen address.
func (c *Config) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":9090"
	}
}
