package telemetry

import (
	"context"
	"time"
)

// Recorder receives collector events and exposes them as Prometheus
// metrics.
type Recorder interface {
	RoundStored(samples int, took time.Duration)
	SourceFailed(source string)
	ChartsStored(count int)
	RoundsPruned(count int64)
	StoreSize(bytes int64)
	Utilization(class string, percent float64)
	Serve(ctx context.Context) error
	Close() error
}

// Metric names.
const (
	RoundsTotal          = "thrud_collection_rounds_total"
	SamplesTotal         = "thrud_samples_stored_total"
	ChartsTotal          = "thrud_charts_stored_total"
	PrunedTotal          = "thrud_rounds_pruned_total"
	SourceFailuresTotal  = "thrud_source_failures_total"
	StoreBytes           = "thrud_store_size_bytes"
	UtilizationPercent   = "thrud_utilization_percent"
	RoundDurationSeconds = "thrud_round_duration_seconds"
)
