package telemetry

import (
	"codeberg.org/mutker/thrud/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultAddr = "127.0.0.1:9477"

type Config struct {
	Enabled bool
	Addr    string
	// Registerer defaults to prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// Gatherer defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
}

func DefaultConfig() Config {
	return Config{
		Enabled: false,
		Addr:    defaultAddr,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()
	if c.Enabled && c.Addr == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "metrics address is required when telemetry is enabled")
	}
	return nil
}

func (c Config) registerer() prometheus.Registerer {
	if c.Registerer != nil {
		return c.Registerer
	}
	return prometheus.DefaultRegisterer
}

func (c Config) gatherer() prometheus.Gatherer {
	if c.Gatherer != nil {
		return c.Gatherer
	}
	return prometheus.DefaultGatherer
}
