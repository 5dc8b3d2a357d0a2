package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/thrud/internal/chart"
)

// Metric names written by the counter bridges.
const (
	MetricCPUUserTicks   = "cpu_user_ticks"
	MetricCPUSystemTicks = "cpu_system_ticks"
	MetricCPUNiceTicks   = "cpu_nice_ticks"
	MetricCPUIdleTicks   = "cpu_idle_ticks"
	MetricCPUCoreCount   = "cpu_core_count"

	MetricGPUUtilization = "gpu_utilization"
	MetricGPUTemperature = "gpu_temperature"
	MetricGPUPower       = "gpu_power_watts"
	MetricGPUFanSpeed    = "gpu_fan_speed"
)

// CPUTickMetrics lists the per-core tick counters.
var CPUTickMetrics = []string{
	MetricCPUUserTicks,
	MetricCPUSystemTicks,
	MetricCPUNiceTicks,
	MetricCPUIdleTicks,
}

// SampleWriter persists collection rounds.
type SampleWriter interface {
	StoreRound(ctx context.Context, samples []Sample) (CollectionRound, error)
}

// SampleReader reads committed samples.
type SampleReader interface {
	Samples(ctx context.Context, names []string, since time.Time) ([]StoredSample, error)
	RecentRounds(ctx context.Context, n int) ([]CollectionRound, error)
	SamplesForRounds(ctx context.Context, roundIDs, names []string) ([]StoredSample, error)
}

// ChartStore is the chart cache.
type ChartStore interface {
	StoreCharts(ctx context.Context, charts []Chart) error
	LatestCharts(ctx context.Context, metricNames []string, enc chart.Encoding, limit int) ([]Chart, error)
}

// Sample is one typed measurement. Samples are immutable once stored.
type Sample struct {
	Name      string
	Value     Value
	Timestamp time.Time
	Tags      Tags
}

// StoredSample is a sample read back together with its round.
type StoredSample struct {
	ID      int64
	RoundID string
	Sample
}

// CollectionRound groups the samples of one sampling pass.
type CollectionRound struct {
	ID          string
	Timestamp   time.Time
	SampleCount int
}

// Chart is a rendered utilization series for one round and metric.
type Chart struct {
	ID         int64
	RoundID    string
	MetricName string
	Encoding   chart.Encoding
	Data       string
	DataPoints int
	Timestamp  time.Time
}

// Stats summarises the store contents.
type Stats struct {
	TotalSamples  int64
	TotalRounds   int64
	LatestRound   *CollectionRound
	DatabaseBytes int64
}
