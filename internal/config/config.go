package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

// Config is the gitteh configuration file.
type Config struct {
	Runtime    RuntimeConfig    `yaml:"runtime"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Repository RepositoryConfig `yaml:"repository"`
	Revalidate RevalidateConfig `yaml:"revalidate"`
}

// RuntimeConfig sizes the job scheduler.
type RuntimeConfig struct {
	Workers         int           `yaml:"workers"`          // Worker goroutines running native jobs
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // Bound on draining queued jobs at exit
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// MetricsConfig controls the Prometheus recorder and its HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // Listen address for /metrics, e.g. ":9090"
}

// RepositoryConfig names the default repository for commands that take one.
type RepositoryConfig struct {
	Path string `yaml:"path"`
}

// RevalidateConfig controls out-of-band index change detection.
type RevalidateConfig struct {
	Watch    bool          `yaml:"watch"`    // fsnotify on the index file
	Interval time.Duration `yaml:"interval"` // mtime poll period; 0 disables polling
	Debounce time.Duration `yaml:"debounce"` // coalescing window for watch events
}

// Enabled reports whether any revalidation source is configured.
func (r RevalidateConfig) Enabled() bool { return r.Watch || r.Interval > 0 }

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	_ = ApplyDefaults(cfg)
	return cfg
}

// Load reads the configuration at configPath. Environment variables from
// .env and .env.local are loaded first, then ${VAR} references in the file
// are expanded. Defaults are applied and the result validated.
func Load(configPath string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, gerrors.Wrap(err, gerrors.CategoryConfig, "failed to load environment file")
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, gerrors.ConfigNotFound(configPath)
	}
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CategoryConfig, "failed to read config file").
			WithContext("path", configPath)
	}

	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configPath, or returns Default when configPath is empty.
func LoadOrDefault(configPath string) (*Config, error) {
	if configPath == "" {
		if err := loadEnvFiles(); err != nil {
			return nil, gerrors.Wrap(err, gerrors.CategoryConfig, "failed to load environment file")
		}
		return Default(), nil
	}
	return Load(configPath)
}

// Parse decodes YAML from r, expanding ${VAR} references, then applies
// defaults and validates. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, gerrors.Wrap(err, gerrors.CategoryConfig, "failed to read config")
	}
	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, gerrors.Wrap(err, gerrors.CategoryConfig, "failed to unmarshal config")
	}

	if err := ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return out, nil
}
