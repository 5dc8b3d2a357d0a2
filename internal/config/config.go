// Package config loads collector settings from a TOML file, THRUD_*
// environment variables and command-line flags, in increasing priority.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/thrud/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultInterval    = 5 * time.Second
	DefaultWindow      = 60 * time.Second
	DefaultChartPoints = 8
	DefaultDriver      = "sqlite3"
	DefaultLogLevel    = string(LogLevelInfo)

	maxChartPoints   = 120
	configName       = "thrud"
	defaultEnvPrefix = "THRUD"
	databaseFile     = "thrud.db"
	pidFile          = "thrud.pid"
)

var drivers = map[string]bool{"sqlite3": true, "sqlite": true}

type Config struct {
	Interval    time.Duration `mapstructure:"interval"`
	Window      time.Duration `mapstructure:"window"`
	ChartPoints int           `mapstructure:"chart_points"`
	Database    string        `mapstructure:"database"`
	Driver      string        `mapstructure:"driver"`
	LogLevel    string        `mapstructure:"log_level"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	Retention   time.Duration `mapstructure:"retention"`
	PIDFile     string        `mapstructure:"pid_file"`
	GPU         bool          `mapstructure:"gpu"`
	CPU         bool          `mapstructure:"cpu"`
}

// Load builds the configuration for the collector. args are the command
// line arguments without the program name.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: defaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	fs := NewFlagSet(configName)
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(o.envPrefix)
	v.AutomaticEnv()

	path := o.configPath
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}
	if flagPath, _ := fs.GetString("config"); fs.Changed("config") {
		path = flagPath
	}
	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewFlagSet returns the collector flags. Flags left unset fall back to
// the file, the environment and then the defaults.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "Path to the configuration file")
	fs.Duration("interval", DefaultInterval, "Time between collection rounds")
	fs.Duration("window", DefaultWindow, "Trailing window for live rates")
	fs.Int("chart-points", DefaultChartPoints, "Utilization points per chart")
	fs.String("database", defaultDatabase(), "Path to the sample database")
	fs.String("driver", DefaultDriver, "sqlite driver: sqlite3 (cgo) or sqlite (pure Go)")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.String("metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.Duration("retention", 0, "Prune rounds older than this, 0 keeps everything")
	fs.String("pid-file", defaultPIDFile(), "Path to the PID file")
	fs.Bool("gpu", true, "Collect NVIDIA GPU samples")
	fs.Bool("cpu", true, "Collect per-core CPU samples")
	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("window", DefaultWindow)
	v.SetDefault("chart_points", DefaultChartPoints)
	v.SetDefault("database", defaultDatabase())
	v.SetDefault("driver", DefaultDriver)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("retention", time.Duration(0))
	v.SetDefault("pid_file", defaultPIDFile())
	v.SetDefault("gpu", true)
	v.SetDefault("cpu", true)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	errFactory := errors.New()

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if bindErr != nil || f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = errFactory.Wrap(errors.ErrBindFlags, err)
		}
	})
	return bindErr
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, configName))
	}
	v.AddConfigPath(filepath.Join("/etc", configName))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}
	return nil
}

func defaultDatabase() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, configName, databaseFile)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", configName, databaseFile)
	}
	return databaseFile
}

func defaultPIDFile() string {
	return filepath.Join(os.TempDir(), pidFile)
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval.String())
	}
	if c.Window <= 0 {
		return errFactory.WithData(errors.ErrInvalidWindow, c.Window.String())
	}
	if c.ChartPoints < 2 || c.ChartPoints > maxChartPoints {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value int
		}{
			Field: "chart_points",
			Value: c.ChartPoints,
		})
	}
	if c.Retention < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value string
		}{
			Field: "retention",
			Value: c.Retention.String(),
		})
	}
	if c.Database == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "database path must not be empty")
	}
	if !drivers[c.Driver] {
		return errFactory.WithData(errors.ErrInvalidConfig, struct {
			Field string
			Value string
		}{
			Field: "driver",
			Value: c.Driver,
		})
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	return nil
}

func (c *Config) GetInterval() time.Duration  { return c.Interval }
func (c *Config) GetWindow() time.Duration    { return c.Window }
func (c *Config) GetChartPoints() int         { return c.ChartPoints }
func (c *Config) GetDatabase() string         { return c.Database }
func (c *Config) GetDriver() string           { return c.Driver }
func (c *Config) GetLogLevel() string         { return c.LogLevel }
func (c *Config) GetMetricsAddr() string      { return c.MetricsAddr }
func (c *Config) IsTelemetryEnabled() bool    { return c.MetricsAddr != "" }
func (c *Config) GetRetention() time.Duration { return c.Retention }
func (c *Config) GetPIDFile() string          { return c.PIDFile }
func (c *Config) IsGPUEnabled() bool          { return c.GPU }
func (c *Config) IsCPUEnabled() bool          { return c.CPU }
