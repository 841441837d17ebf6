package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleJSON = `{
  "store": {"backend": "sqlite", "dsn": "engine.db"},
  "mqtt": {"broker": "tcp://localhost:1883", "client_id": "dispatchsim", "ack_topic": "units/ack"},
  "metrics": {"prometheus_enabled": true, "prometheus_port": ":9090"},
  "engine": {
    "transport_bonus": 50,
    "tick_seconds": 1,
    "ack_timeout_seconds": 5,
    "hold_minutes": 10
  },
  "catalog": {
    "aliases": {"engine": "pumper"},
    "patient_transport": ["ambulance"],
    "class_speeds_kmh": {"ambulance": 80}
  }
}`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", sampleJSON))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.DSN != "engine.db" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Fatalf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.Engine.TransportBonus != 50 || cfg.Engine.HoldMinutes != 10 {
		t.Fatalf("engine = %+v", cfg.Engine)
	}
	if cfg.Engine.APIAddr != ":8080" {
		t.Fatalf("api addr default = %q", cfg.Engine.APIAddr)
	}
	if a, ok := cfg.Catalog.Alias("pumper"); !ok || a != "engine" {
		t.Fatalf("catalog alias not initialized: %q %v", a, ok)
	}
}

func TestLoadYAML(t *testing.T) {
	yaml := "store:\n  backend: memory\nengine:\n  api_addr: \":9000\"\n"
	cfg, err := Load(writeConfig(t, "config.yaml", yaml))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.Engine.APIAddr != ":9000" {
		t.Fatalf("api addr = %q", cfg.Engine.APIAddr)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("K_STORE__BACKEND", "memory")
	cfg, err := Load(writeConfig(t, "config.json", sampleJSON))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Fatalf("env override ignored: %q", cfg.Store.Backend)
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	if _, err := Load(writeConfig(t, "config.toml", "x = 1")); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLoadRejectsSQLiteWithoutDSN(t *testing.T) {
	if _, err := Load(writeConfig(t, "config.json", `{"store":{"backend":"sqlite"}}`)); err == nil {
		t.Fatal("expected validation error")
	}
}
