package config

import (
	"fmt"

	"github.com/kilianp07/geodispatch/infra/postgres"
)

// StoreConfig selects the roster and delivery store.
type StoreConfig struct {
	// Backend is "memory" or "postgres".
	Backend  string          `json:"backend"`
	Postgres postgres.Config `json:"postgres"`
	// SeedPath is a JSON or YAML seed file applied at startup.
	SeedPath string `json:"seed_path"`
}

// SetDefaults selects the in-memory store.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
}

// Validate checks mandatory fields.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("store: postgres dsn is required")
		}
	default:
		return fmt.Errorf("store: unknown backend %s", c.Backend)
	}
	return nil
}

// LocationConfig selects where driver positions come from.
type LocationConfig struct {
	// Source is "mqtt", "simulator" or "none".
	Source string `json:"source"`
}

// SetDefaults uses the simulator.
func (c *LocationConfig) SetDefaults() {
	if c.Source == "" {
		c.Source = "simulator"
	}
}

// Validate checks the source name.
func (c LocationConfig) Validate() error {
	switch c.Source {
	case "mqtt", "simulator", "none":
		return nil
	}
	return fmt.Errorf("location: unknown source %s", c.Source)
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	ListenAddr string `json:"listen_addr"`
	// WebsocketPath serves the event stream when a websocket transport is
	// configured.
	WebsocketPath string `json:"websocket_path"`
}

// SetDefaults fills the listen address.
func (c *APIConfig) SetDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.WebsocketPath == "" {
		c.WebsocketPath = "/ws"
	}
}
