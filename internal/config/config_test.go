package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/thrud/internal/config"
	"codeberg.org/mutker/thrud/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thrud.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
interval = "10s"
window = "2m"
chart_points = 12
database = "/path/to/thrud.db"
driver = "sqlite"
log_level = "debug"
metrics_addr = "127.0.0.1:9000"
retention = "168h"
gpu = false
`)
	t.Setenv("THRUD_CONFIG", path)

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Window)
	assert.Equal(t, 12, cfg.ChartPoints)
	assert.Equal(t, "/path/to/thrud.db", cfg.Database)
	assert.Equal(t, "sqlite", cfg.Driver)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "127.0.0.1:9000", cfg.MetricsAddr)
	assert.True(t, cfg.IsTelemetryEnabled())
	assert.Equal(t, 168*time.Hour, cfg.Retention)
	assert.False(t, cfg.GPU)
	assert.True(t, cfg.CPU)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("THRUD_CONFIG", "")
	t.Setenv("XDG_DATA_HOME", "/data")

	cfg, err := config.Load(nil)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultInterval, cfg.Interval)
	assert.Equal(t, config.DefaultWindow, cfg.Window)
	assert.Equal(t, config.DefaultChartPoints, cfg.ChartPoints)
	assert.Equal(t, config.DefaultDriver, cfg.Driver)
	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, "/data/thrud/thrud.db", cfg.Database)
	assert.Empty(t, cfg.MetricsAddr)
	assert.False(t, cfg.IsTelemetryEnabled())
	assert.Zero(t, cfg.Retention)
	assert.True(t, cfg.GPU)
	assert.True(t, cfg.CPU)
}

func TestLoadPriority(t *testing.T) {
	path := writeConfig(t, `
interval = "10s"
chart_points = 12
log_level = "error"
`)
	t.Setenv("THRUD_CHART_POINTS", "20")
	t.Setenv("THRUD_LOG_LEVEL", "warn")

	cfg, err := config.Load([]string{"--log-level", "debug"}, config.WithConfigFile(path))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Interval, "file beats default")
	assert.Equal(t, 20, cfg.ChartPoints, "env beats file")
	assert.Equal(t, "debug", cfg.LogLevel, "flag beats env")
}

func TestLoadEnvPrefix(t *testing.T) {
	t.Setenv("THRUD_CONFIG", "")
	t.Setenv("COLLECT_INTERVAL", "30s")

	cfg, err := config.Load(nil, config.WithEnvPrefix("COLLECT"))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Interval)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	path := writeConfig(t, `
This is not a valid TOML file
`)
	t.Setenv("THRUD_CONFIG", path)

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(nil, config.WithConfigFile(filepath.Join(t.TempDir(), "missing.toml")))
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestInvalidLogLevel(t *testing.T) {
	t.Setenv("THRUD_CONFIG", writeConfig(t, `log_level = "invalid"`))

	_, err := config.Load(nil)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestLogLevelFlag(t *testing.T) {
	t.Setenv("THRUD_CONFIG", "")

	cfg, err := config.Load([]string{"--log-level", "DEBUG"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
}

func TestUnknownFlag(t *testing.T) {
	_, err := config.Load([]string{"--temperature", "80"})
	assert.True(t, errors.HasCode(err, errors.ErrBindFlags))
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			Interval:    time.Second,
			Window:      time.Minute,
			ChartPoints: 8,
			Database:    "thrud.db",
			Driver:      "sqlite3",
			LogLevel:    "info",
		}
	}

	cfg := valid()
	require.NoError(t, cfg.Validate())

	cases := map[string]struct {
		mutate func(*config.Config)
		code   errors.ErrorCode
	}{
		"zero interval":   {func(c *config.Config) { c.Interval = 0 }, errors.ErrInvalidInterval},
		"negative window": {func(c *config.Config) { c.Window = -time.Second }, errors.ErrInvalidWindow},
		"one point":       {func(c *config.Config) { c.ChartPoints = 1 }, errors.ErrInvalidConfig},
		"too many points": {func(c *config.Config) { c.ChartPoints = 500 }, errors.ErrInvalidConfig},
		"unknown driver":  {func(c *config.Config) { c.Driver = "postgres" }, errors.ErrInvalidConfig},
		"empty database":  {func(c *config.Config) { c.Database = "" }, errors.ErrInvalidConfig},
		"retention":       {func(c *config.Config) { c.Retention = -time.Hour }, errors.ErrInvalidConfig},
		"log level":       {func(c *config.Config) { c.LogLevel = "loud" }, errors.ErrInvalidLogLevel},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			assert.True(t, errors.HasCode(cfg.Validate(), tc.code))
		})
	}
}
