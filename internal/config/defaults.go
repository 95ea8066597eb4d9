package config

import (
	"runtime"
	"time"
)

// DefaultApplier applies defaults for one configuration section.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

const (
	defaultShutdownTimeout = 30 * time.Second
	defaultMetricsAddress  = ":9090"
	defaultDebounce        = 250 * time.Millisecond
)

// RuntimeDefaultApplier sizes the worker pool.
type RuntimeDefaultApplier struct{}

func (RuntimeDefaultApplier) Domain() string { return "runtime" }

func (RuntimeDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Runtime.Workers <= 0 {
		cfg.Runtime.Workers = min(runtime.GOMAXPROCS(0), 8)
	}
	if cfg.Runtime.ShutdownTimeout <= 0 {
		cfg.Runtime.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}

// LoggingDefaultApplier normalizes level and format, defaulting to info/text.
type LoggingDefaultApplier struct{}

func (LoggingDefaultApplier) Domain() string { return "logging" }

func (LoggingDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = LogLevelInfo
	} else if l := NormalizeLogLevel(string(cfg.Logging.Level)); l != "" {
		cfg.Logging.Level = l
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = LogFormatText
	} else if f := NormalizeLogFormat(string(cfg.Logging.Format)); f != "" {
		cfg.Logging.Format = f
	}
	return nil
}

// MetricsDefaultApplier fills the listen address of an enabled endpoint.
type MetricsDefaultApplier struct{}

func (MetricsDefaultApplier) Domain() string { return "metrics" }

func (MetricsDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		cfg.Metrics.Address = defaultMetricsAddress
	}
	return nil
}

// RevalidateDefaultApplier sets the watch debounce window.
type RevalidateDefaultApplier struct{}

func (RevalidateDefaultApplier) Domain() string { return "revalidate" }

func (RevalidateDefaultApplier) ApplyDefaults(cfg *Config) error {
	if cfg.Revalidate.Debounce <= 0 {
		cfg.Revalidate.Debounce = defaultDebounce
	}
	return nil
}

var defaultAppliers = []DefaultApplier{
	RuntimeDefaultApplier{},
	LoggingDefaultApplier{},
	MetricsDefaultApplier{},
	RevalidateDefaultApplier{},
}

// ApplyDefaults runs every section's applier in order.
func ApplyDefaults(cfg *Config) error {
	for _, a := range defaultAppliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}
