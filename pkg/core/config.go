package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries the ambient knobs a running process needs that are not
// per-stimulation: default concurrency, default hop cap, whether the
// facade auto-deletes finished neuron contexts, and the optional ledger
// and watchdog settings. Loaded from YAML, then overridden by CLI flags.
type Config struct {
	DefaultConcurrency  int           `yaml:"defaultConcurrency"`
	DefaultMaxNeuronHops int          `yaml:"defaultMaxNeuronHops"`
	AutoCleanupContexts bool          `yaml:"autoCleanupContexts"`
	LedgerPath          string        `yaml:"ledgerPath"`
	WatchdogIdleTimeout time.Duration `yaml:"watchdogIdleTimeout"`
}

// DefaultConfig returns the built-in defaults applied before any YAML
// file or CLI flag is consulted.
func DefaultConfig() Config {
	return Config{
		DefaultConcurrency:  0,
		DefaultMaxNeuronHops: 0,
		AutoCleanupContexts: true,
		LedgerPath:          "",
		WatchdogIdleTimeout: 0,
	}
}

// LoadConfig reads a YAML config file, falling back to defaults when
// path is empty. Env var CNS_CONFIG is consulted by callers before
// calling this, matching the teacher's config resolution order
// (flag > env > file > default).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// CLIOverrides mirrors pflag's pointer-to-value convention so "flag not
// passed" can be distinguished from "flag passed with its zero value."
type CLIOverrides struct {
	ConfigPath          *string
	Concurrency         *int
	MaxNeuronHops       *int
	AutoCleanupContexts *bool
	LedgerPath          *string
	WatchdogIdleTimeout *time.Duration
}

// WithOverrides layers non-nil CLI flag values on top of cfg.
func (cfg Config) WithOverrides(o *CLIOverrides) Config {
	if o == nil {
		return cfg
	}
	if o.Concurrency != nil {
		cfg.DefaultConcurrency = *o.Concurrency
	}
	if o.MaxNeuronHops != nil {
		cfg.DefaultMaxNeuronHops = *o.MaxNeuronHops
	}
	if o.AutoCleanupContexts != nil {
		cfg.AutoCleanupContexts = *o.AutoCleanupContexts
	}
	if o.LedgerPath != nil {
		cfg.LedgerPath = *o.LedgerPath
	}
	if o.WatchdogIdleTimeout != nil {
		cfg.WatchdogIdleTimeout = *o.WatchdogIdleTimeout
	}
	return cfg
}
