package config

import (
	"fmt"
	"net"

	gerrors "git.home.luguber.info/inful/gitteh/internal/errors"
)

const maxWorkers = 256

// ValidateConfig validates a configuration with defaults applied.
func ValidateConfig(cfg *Config) error {
	return newConfigurationValidator(cfg).validate()
}

type configurationValidator struct {
	config *Config
}

func newConfigurationValidator(config *Config) *configurationValidator {
	return &configurationValidator{config: config}
}

func (cv *configurationValidator) validate() error {
	for _, check := range []func() error{
		cv.validateRuntime,
		cv.validateLogging,
		cv.validateMetrics,
		cv.validateRevalidate,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (cv *configurationValidator) validateRuntime() error {
	w := cv.config.Runtime.Workers
	if w < 1 || w > maxWorkers {
		return gerrors.ValidationFailed("runtime.workers", fmt.Sprintf("must be between 1 and %d, got %d", maxWorkers, w))
	}
	return nil
}

func (cv *configurationValidator) validateLogging() error {
	if NormalizeLogLevel(string(cv.config.Logging.Level)) == "" {
		return gerrors.ValidationFailed("logging.level", fmt.Sprintf("unknown level %q", cv.config.Logging.Level))
	}
	if NormalizeLogFormat(string(cv.config.Logging.Format)) == "" {
		return gerrors.ValidationFailed("logging.format", fmt.Sprintf("unknown format %q", cv.config.Logging.Format))
	}
	return nil
}

func (cv *configurationValidator) validateMetrics() error {
	m := cv.config.Metrics
	if !m.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(m.Address); err != nil {
		return gerrors.ValidationFailed("metrics.address", fmt.Sprintf("invalid listen address %q: %v", m.Address, err))
	}
	return nil
}

func (cv *configurationValidator) validateRevalidate() error {
	r := cv.config.Revalidate
	if r.Interval < 0 {
		return gerrors.ValidationFailed("revalidate.interval", "must not be negative")
	}
	if r.Interval > 0 && r.Interval < r.Debounce {
		return gerrors.ValidationFailed("revalidate.interval", "must not be shorter than revalidate.debounce")
	}
	return nil
}
