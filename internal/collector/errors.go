package collector

import "codeberg.org/mutker/thrud/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrNoSamples     = errors.ErrorCode("collector_no_samples")
	ErrCollect       = errors.ErrCollect
	ErrStoreRound    = errors.ErrStoreRound
	ErrChartFailed   = errors.ErrorCode("collector_chart_failed")
)
