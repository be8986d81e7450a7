package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kilianp07/geodispatch/core/model"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `store:
  backend: "memory"
  seed_path: "seed.json"
location:
  source: "mqtt"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  password: "pass"
  mode: "hybrid"
  use_tls: false
dispatch:
  tick_interval_seconds: 5
  automation:
    route_advisory: false
  adjacent_zones:
    north: ["central"]
gate:
  radius_m: 150
zones:
  - id: "depot"
    name: "Depot"
    center: {lat: 30.27, lng: -97.74}
    radius_m: 200
    kind: "pickup_zone"
transports:
  - type: "redis"
    conf:
      url: "redis://localhost:6379/0"
metrics:
  sinks:
    - type: "nop"
commit_log:
  backend: "jsonl"
  path: "commits.jsonl"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"store.backend", cfg.Store.Backend, "memory"},
		{"store.seed_path", cfg.Store.SeedPath, "seed.json"},
		{"location.source", cfg.Location.Source, "mqtt"},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "cli"},
		{"username", cfg.MQTT.Username, "user"},
		{"mode", cfg.MQTT.Mode, "hybrid"},
		{"use_tls", cfg.MQTT.UseTLS, false},
		{"tick_interval_seconds", cfg.Dispatch.TickIntervalSeconds, 5},
		{"assignment kept on", cfg.Dispatch.Automation.Assignment, true},
		{"escalation kept on", cfg.Dispatch.Automation.Escalation, true},
		{"route_advisory", cfg.Dispatch.Automation.RouteAdvisory, false},
		{"adjacent", len(cfg.Dispatch.AdjacentZones[model.Zone("north")]), 1},
		{"escalate default", cfg.Dispatch.EscalateHighAfterMinutes, 60},
		{"gate.radius_m", cfg.Gate.RadiusM, 150.0},
		{"zones", len(cfg.Zones), 1},
		{"zone kind", cfg.Zones[0].Kind, model.KindPickup},
		{"transport", cfg.Transports[0].Type, "redis"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"metrics listen default", cfg.Metrics.ListenAddr, ":9090"},
		{"commit_log", cfg.CommitLog.Backend, "jsonl"},
		{"api default", cfg.API.ListenAddr, ":8080"},
		{"tracking ladder default", len(cfg.Tracking.Ladder), 2},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
}

func TestLoadJSONWithEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.json", `{"dispatch": {"tick_interval_seconds": 3}}`)
	t.Setenv("K_DISPATCH__TICK_INTERVAL_SECONDS", "7")
	t.Setenv("K_DISPATCH__AUTOMATION__ROUTE_ADVISORY", "false")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if cfg.Dispatch.TickIntervalSeconds != 7 {
		t.Errorf("env override not applied: %d", cfg.Dispatch.TickIntervalSeconds)
	}
	if cfg.Location.Source != "simulator" {
		t.Errorf("default source: %s", cfg.Location.Source)
	}
	if !cfg.Dispatch.Automation.Assignment {
		t.Errorf("automation should default on")
	}
	if cfg.Dispatch.Automation.RouteAdvisory {
		t.Errorf("nested env override not applied")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown store":   "store:\n  backend: \"mongo\"\n",
		"postgres no dsn": "store:\n  backend: \"postgres\"\n",
		"unknown source":  "location:\n  source: \"gps\"\n",
		"bad zone":        "zones:\n  - id: \"z\"\n    radius_m: 0\n    kind: \"delivery_zone\"\n",
		"commit log path": "commit_log:\n  backend: \"sqlite\"\n",
		"urgent precedes": "dispatch:\n  escalate_high_after_minutes: 90\n  escalate_urgent_after_minutes: 30\n",
		"mqtt no broker":  "location:\n  source: \"mqtt\"\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, "c.yaml", data)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := Load(writeConfig(t, "c.toml", "")); err == nil {
		t.Fatal("expected error")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
