package cpu

import "codeberg.org/mutker/thrud/internal/errors"

const (
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrStatFailed    = errors.ErrorCode("cpu_stat_failed")
	ErrNoCPUs        = errors.ErrorCode("cpu_no_cpus")
)
