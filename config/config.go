package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/geodispatch/core/dispatch"
	dispatchlog "github.com/kilianp07/geodispatch/core/dispatch/logging"
	"github.com/kilianp07/geodispatch/core/factory"
	"github.com/kilianp07/geodispatch/core/gate"
	"github.com/kilianp07/geodispatch/core/metrics"
	"github.com/kilianp07/geodispatch/core/model"
	"github.com/kilianp07/geodispatch/core/tracking"
	"github.com/kilianp07/geodispatch/infra/archive"
	"github.com/kilianp07/geodispatch/infra/monitoring"
	"github.com/kilianp07/geodispatch/infra/mqtt"
	"github.com/kilianp07/geodispatch/simulator"
)

type Config struct {
	Store    StoreConfig          `json:"store"`
	Dispatch dispatch.Config      `json:"dispatch"`
	Tracking tracking.Config      `json:"tracking"`
	Location LocationConfig       `json:"location"`
	Gate     gate.Config          `json:"gate"`
	Zones    []model.GeofenceZone `json:"zones"`
	MQTT     mqtt.Config          `json:"mqtt"`
	// Transports lists event sinks by type: mqtt, redis, kafka or websocket.
	Transports []factory.ModuleConfig `json:"transports"`
	Metrics    metrics.Config         `json:"metrics"`
	CommitLog  dispatchlog.Config     `json:"commit_log"`
	Archive    *archive.Config        `json:"archive"`
	Sentry     monitoring.Config      `json:"sentry"`
	API        APIConfig              `json:"api"`
	Simulator  simulator.Config       `json:"simulator"`
}

// Default returns a configuration with every automated pass enabled. Load
// decodes on top of it so omitted toggles stay on.
func Default() *Config {
	cfg := &Config{}
	cfg.Dispatch.Automation = dispatch.AllOn()
	cfg.SetDefaults()
	return cfg
}

// SetDefaults applies the defaults of every section.
func (c *Config) SetDefaults() {
	c.Store.SetDefaults()
	c.Dispatch.SetDefaults()
	c.Tracking.SetDefaults()
	c.Location.SetDefaults()
	c.Gate.SetDefaults()
	c.Metrics.SetDefaults()
	c.API.SetDefaults()
	c.Simulator.SetDefaults()
	if c.Location.Source == "mqtt" || c.MQTT.Broker != "" {
		c.MQTT.SetDefaults()
	}
}

// Validate checks the sections that can be misconfigured.
func (c *Config) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Dispatch.Validate(); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if err := c.Tracking.Validate(); err != nil {
		return fmt.Errorf("tracking: %w", err)
	}
	if err := c.Location.Validate(); err != nil {
		return err
	}
	if c.Location.Source == "mqtt" {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}
	for _, z := range c.Zones {
		if err := z.Validate(); err != nil {
			return fmt.Errorf("zones: %w", err)
		}
	}
	switch c.CommitLog.Backend {
	case "", "jsonl", "rotating", "sqlite":
	default:
		return fmt.Errorf("commit_log: unknown backend %s", c.CommitLog.Backend)
	}
	if c.CommitLog.Backend != "" && c.CommitLog.Path == "" {
		return fmt.Errorf("commit_log: path is required")
	}
	return c.Simulator.Validate()
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Environment overrides: K_SECTION__KEY maps to section.key.
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := &Config{}
	cfg.Dispatch.Automation = dispatch.AllOn()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
