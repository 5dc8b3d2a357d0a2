package chart

import "codeberg.org/mutker/thrud/internal/errors"

const (
	ErrInvalidEncoding = errors.ErrorCode("chart_invalid_encoding")
)
