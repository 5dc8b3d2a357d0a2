package collector

import (
	"time"

	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/rate"
)

const (
	DefaultChartPoints = 8
	maxChartPoints     = 120
)

type Config struct {
	// ChartPoints is the number of utilization points per chart.
	ChartPoints int
	// Window is the trailing span for the live utilization gauges.
	Window time.Duration
	// Retention prunes rounds older than this; zero keeps everything.
	Retention time.Duration
}

func DefaultConfig() Config {
	return Config{
		ChartPoints: DefaultChartPoints,
		Window:      rate.DefaultWindow,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.ChartPoints < 2 || c.ChartPoints > maxChartPoints {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value int
		}{
			Field: "chart_points",
			Value: c.ChartPoints,
		})
	}
	if c.Window <= 0 {
		return errFactory.WithData(errors.ErrInvalidWindow, struct {
			Window string
		}{
			Window: c.Window.String(),
		})
	}
	if c.Retention < 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value string
		}{
			Field: "retention",
			Value: c.Retention.String(),
		})
	}
	return nil
}
