// Package config loads the gateway configuration from yaml or json files
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

	"github.com/kilianp07/cpflow/core/csms"
	"github.com/kilianp07/cpflow/core/metrics"
	"github.com/kilianp07/cpflow/core/simulator"
	"github.com/kilianp07/cpflow/infra/mqtt"
)

// PipeletConfig tunes the untrusted code runtime.
type PipeletConfig struct {
	// Interpreter is the executable used to run pipelet code.
	Interpreter string `json:"interpreter"`
	// NodeTimeoutMS bounds one node execution.
	NodeTimeoutMS int `json:"node_timeout_ms"`
}

// SetDefaults applies sane defaults.
func (c *PipeletConfig) SetDefaults() {
	if c.Interpreter == "" {
		c.Interpreter = "python3"
	}
	if c.NodeTimeoutMS <= 0 {
		c.NodeTimeoutMS = 1500
	}
}

// RunlogConfig selects the run log backend.
type RunlogConfig struct {
	// Backend is one of "memory", "jsonl" or "sqlite".
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *RunlogConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.Path == "" {
		switch c.Backend {
		case "jsonl":
			c.Path = "runlog.jsonl"
		case "sqlite":
			c.Path = "runlog.db"
		}
	}
}

// Validate rejects unknown backends.
func (c RunlogConfig) Validate() error {
	switch c.Backend {
	case "memory", "jsonl", "sqlite":
		return nil
	default:
		return fmt.Errorf("unsupported runlog backend: %s", c.Backend)
	}
}

// WorkflowsConfig locates the workflow definition store.
type WorkflowsConfig struct {
	Path string `json:"path"`
}

// SetDefaults applies sane defaults.
func (c *WorkflowsConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "workflows.db"
	}
}

// Config aggregates every gateway section.
type Config struct {
	Server    csms.Config      `json:"server"`
	Simulator simulator.Config `json:"simulator"`
	Pipelet   PipeletConfig    `json:"pipelet"`
	Runlog    RunlogConfig     `json:"runlog"`
	Workflows WorkflowsConfig  `json:"workflows"`
	Metrics   metrics.Config   `json:"metrics"`
	MQTT      mqtt.Config      `json:"mqtt"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Simulator.SetDefaults()
	c.Pipelet.SetDefaults()
	c.Runlog.SetDefaults()
	c.Workflows.SetDefaults()
	c.Metrics.SetDefaults()
	c.MQTT.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	return c.Runlog.Validate()
}

// Default returns a configuration with every default applied, used when no
// config file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// Load reads the configuration file at path. The parser is chosen by file
// extension. Environment variables prefixed with K_ override file values,
// with __ separating nested keys.
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
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
