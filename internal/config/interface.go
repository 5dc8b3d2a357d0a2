package config

import "time"

// Provider exposes read-only access to the loaded configuration.
type Provider interface {
	// GetInterval returns the time between collection rounds
	GetInterval() time.Duration

	// GetWindow returns the trailing span used for live rates
	GetWindow() time.Duration

	// GetChartPoints returns the number of utilization points per chart
	GetChartPoints() int

	// GetDatabase returns the path to the sample store
	GetDatabase() string

	// GetDriver returns the sqlite driver name
	GetDriver() string

	// GetLogLevel returns the configured logging level
	GetLogLevel() string

	// GetMetricsAddr returns the Prometheus listen address, empty when disabled
	GetMetricsAddr() string

	// IsTelemetryEnabled returns whether the Prometheus endpoint is served
	IsTelemetryEnabled() bool

	GetRetention() time.Duration
	GetPIDFile() string
	IsGPUEnabled() bool
	IsCPUEnabled() bool
}

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

type options struct {
	configPath string
	envPrefix  string
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix.
// Default is "THRUD".
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarn    LogLevel = "warn"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

func (l LogLevel) String() string {
	return string(l)
}
