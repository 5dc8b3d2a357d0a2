// Package utilization turns active and idle rates into a busy percentage.
package utilization

import (
	"math"

	"codeberg.org/mutker/thrud/internal/errors"
)

const ErrInvalidInput = errors.ErrorCode("utilization_invalid_input")

// Percent returns 100 * active / (active + idle), clamped to [0, 100].
// A zero total yields 0. NaN or infinite inputs are rejected.
func Percent(active, idle float64) (float64, error) {
	if !finite(active) || !finite(idle) {
		return 0, errors.New().WithData(ErrInvalidInput, struct {
			Active float64
			Idle   float64
		}{
			Active: active,
			Idle:   idle,
		})
	}

	total := active + idle
	if total <= 0 {
		return 0, nil
	}

	return Clamp(100 * active / total), nil
}

// Clamp forces p into [0, 100].
func Clamp(p float64) float64 {
	return math.Max(0, math.Min(100, p))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
