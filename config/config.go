// Package config loads the engine configuration from a JSON or YAML file
// with optional environment overrides.
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

	"github.com/dispatchsim/engine/core/metrics"
	"github.com/dispatchsim/engine/core/missiontimer"
	"github.com/dispatchsim/engine/core/qualify"
	"github.com/dispatchsim/engine/infra/mqtt"
)

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `json:"backend"`
	DSN     string `json:"dsn"`
	Debug   bool   `json:"debug"`
	// Seed optionally points to a JSON file with units, stations and
	// missions loaded at startup.
	Seed string `json:"seed"`
}

// SetDefaults fills in the memory backend when none is configured.
func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
}

// Validate checks the backend selection.
func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "sqlite":
		if c.DSN == "" {
			return fmt.Errorf("sqlite backend requires a dsn")
		}
		return nil
	}
	return fmt.Errorf("unknown store backend: %s", c.Backend)
}

// EngineConfig groups the dispatch and timer tunables.
type EngineConfig struct {
	missiontimer.Config `json:",squash"`
	// AckTimeoutSeconds bounds how long dispatch waits for a crew ACK.
	AckTimeoutSeconds int `json:"ack_timeout_seconds"`
	// HoldMinutes is how long a facility reservation occupies its slot.
	HoldMinutes int `json:"hold_minutes"`
	// APIAddr is the HTTP listen address, e.g. ":8080".
	APIAddr string `json:"api_addr"`
}

// Config is the root configuration document.
type Config struct {
	MQTT    mqtt.Config     `json:"mqtt"`
	Store   StoreConfig     `json:"store"`
	Metrics metrics.Config  `json:"metrics"`
	Engine  EngineConfig    `json:"engine"`
	Catalog qualify.Catalog `json:"catalog"`
}

// Load reads the config file at path, applies K_ environment overrides and
// validates the result.
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
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Store.SetDefaults()
	if err := cfg.Store.Validate(); err != nil {
		return nil, err
	}
	cfg.Catalog.Init()
	if cfg.Engine.APIAddr == "" {
		cfg.Engine.APIAddr = ":8080"
	}
	return &cfg, nil
}
