package query

import "codeberg.org/mutker/thrud/internal/errors"

const (
	ErrInvalidFormat = errors.ErrorCode("query_invalid_format")
	ErrNoCharts      = errors.ErrorCode("query_no_charts")
	ErrWriteFailed   = errors.ErrorCode("query_write_failed")
)
