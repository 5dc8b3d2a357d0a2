package rate

import "codeberg.org/mutker/thrud/internal/errors"

const (
	ErrInvalidWindow = errors.ErrInvalidWindow
	ErrReadFailed    = errors.ErrorCode("rate_read_failed")

	// Issue codes. Issues are attached to a Result and never returned as
	// errors.
	ErrInvalidSample         = errors.ErrorCode("rate_invalid_sample")
	ErrMissingClassification = errors.ErrorCode("rate_missing_classification")
	ErrCounterAnomaly        = errors.ErrorCode("rate_counter_anomaly")
)
