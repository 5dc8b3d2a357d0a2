package collector

import (
	"context"
	"time"

	"codeberg.org/mutker/thrud/internal/chart"
	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/logger"
	"codeberg.org/mutker/thrud/internal/metrics"
	"codeberg.org/mutker/thrud/internal/rate"
)

// Chart series names.
const (
	ChartPerformance = "performance_cores_utilization"
	ChartEfficiency  = "efficiency_cores_utilization"
	ChartGPU         = "gpu_utilization"
)

// ChartMetrics lists the generated series in display order.
var ChartMetrics = []string{ChartPerformance, ChartEfficiency, ChartGPU}

// ChartGenerator renders the recent utilization history into the chart
// cache.
type ChartGenerator struct {
	history *rate.Service
	store   metrics.ChartStore
	points  int
	logger  logger.Logger
	now     func() time.Time
}

func NewChartGenerator(reader metrics.SampleReader, store metrics.ChartStore, points int, log logger.Logger) *ChartGenerator {
	return &ChartGenerator{
		history: rate.NewService(reader, log),
		store:   store,
		points:  points,
		logger:  log,
		now:     time.Now,
	}
}

// Generate builds every chart for roundID from the last points+1 rounds and
// stores them in one batch. A series with fewer than two points is
// skipped. It returns the number of charts stored.
func (g *ChartGenerator) Generate(ctx context.Context, roundID string) (int, error) {
	errFactory := errors.New()

	history, err := g.history.History(ctx, g.points+1)
	if err != nil {
		return 0, errFactory.Wrap(ErrChartFailed, err)
	}

	series := Series(history)
	ts := g.now()

	var charts []metrics.Chart
	for _, name := range ChartMetrics {
		values := series[name]
		if len(values) > g.points {
			values = values[len(values)-g.points:]
		}
		if len(values) < 2 {
			g.logger.Debug().
				Str("metric", name).
				Int("points", len(values)).
				Msg("Not enough points for chart")
			continue
		}

		for _, enc := range chart.Encodings {
			data, err := chart.Encode(enc, values)
			if err != nil {
				return 0, errFactory.Wrap(ErrChartFailed, err)
			}
			charts = append(charts, metrics.Chart{
				RoundID:    roundID,
				MetricName: name,
				Encoding:   enc,
				Data:       data,
				DataPoints: len(values),
				Timestamp:  ts,
			})
		}
	}

	if len(charts) == 0 {
		return 0, nil
	}
	if err := g.store.StoreCharts(ctx, charts); err != nil {
		return 0, errFactory.Wrap(ErrChartFailed, err)
	}

	return len(charts), nil
}

// Series splits a utilization history into per-chart value lists, oldest
// first. Rounds without a value for a series are left out of it.
func Series(history []rate.RoundUtilization) map[string][]float64 {
	out := make(map[string][]float64, len(ChartMetrics))
	for _, h := range history {
		if v, ok := h.CoreTypes[metrics.CoreTypePerformance]; ok {
			out[ChartPerformance] = append(out[ChartPerformance], v)
		}
		if v, ok := h.CoreTypes[metrics.CoreTypeEfficiency]; ok {
			out[ChartEfficiency] = append(out[ChartEfficiency], v)
		}
		if h.HasGPU {
			out[ChartGPU] = append(out[ChartGPU], h.GPU)
		}
	}
	return out
}
