// Package config loads a session's options from YAML: a typed struct with
// yaml tags, a documented set of defaults, and a loader that never hands
// back a half-populated struct.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is a session's options: which Broker and Storage drivers to
// construct, how many local executor workers to run, and whether to wire
// the optional tracing/metrics hooks ("Observability hook").
type Config struct {
	// GraphID names the single graph this session opens (:
	// "cross-graph dependencies" are out of scope, so one session serves
	// exactly one graph).
	GraphID string `yaml:"graph_id"`

	// Workers is how many local executor goroutines claim and run ready
	// calls, whatever the Broker.Kind. Set to 0 (e.g. with Broker.Kind
	// "ws") to run a pure dispatcher with only remote workers.
	Workers int `yaml:"workers"`

	Broker  BrokerConfig  `yaml:"broker"`
	Storage StorageConfig `yaml:"storage"`
	Tracing TracingConfig `yaml:"tracing"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// BrokerConfig selects and configures a Broker Adapter driver.
type BrokerConfig struct {
	// Kind is "inmemory" (default) or "ws".
	Kind string `yaml:"kind"`
	// ListenAddr is the address the "ws" driver's worker-facing HTTP
	// server binds to. Ignored by "inmemory".
	ListenAddr string `yaml:"listen_addr"`
	// ReadyBuffer and CompletionBuffer size the driver's internal queues.
	ReadyBuffer      int `yaml:"ready_buffer"`
	CompletionBuffer int `yaml:"completion_buffer"`
}

// StorageConfig selects and configures a Storage Adapter driver.
type StorageConfig struct {
	// Kind is "inmemory" (default) or "badger".
	Kind string `yaml:"kind"`
	// Path is the directory the "badger" driver persists to. Ignored by
	// "inmemory".
	Path string `yaml:"path"`
}

// TracingConfig configures the optional OpenTelemetry hook.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// MetricsConfig configures the optional Prometheus hook.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration a session gets if no file is loaded:
// an in-memory broker and storage, four local workers, observability off.
func Default() Config {
	return Config{
		GraphID: "default",
		Workers: 4,
		Broker: BrokerConfig{
			Kind:             "inmemory",
			ReadyBuffer:      256,
			CompletionBuffer: 256,
		},
		Storage: StorageConfig{
			Kind: "inmemory",
		},
		Tracing: TracingConfig{ServiceName: "mycelia"},
	}
}

// Load reads and parses a YAML config file at path, filling in any field
// the file omits from Default().
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects a config that would fail deeper in session.Open with a
// less useful error.
func (c Config) Validate() error {
	if c.GraphID == "" {
		return fmt.Errorf("config: graph_id is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must be >= 0")
	}
	switch c.Broker.Kind {
	case "inmemory", "ws":
	default:
		return fmt.Errorf("config: unknown broker kind %q", c.Broker.Kind)
	}
	switch c.Storage.Kind {
	case "inmemory", "badger":
	default:
		return fmt.Errorf("config: unknown storage kind %q", c.Storage.Kind)
	}
	if c.Storage.Kind == "badger" && c.Storage.Path == "" {
		return fmt.Errorf("config: storage.path is required for the badger driver")
	}
	if c.Broker.Kind == "ws" && c.Broker.ListenAddr == "" {
		return fmt.Errorf("config: broker.listen_addr is required for the ws driver")
	}
	return nil
}
