package utilization_test

import (
	"math"
	"testing"

	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/utilization"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPercent(t *testing.T) {
	cases := []struct {
		name         string
		active, idle float64
		want         float64
	}{
		{"zero total", 0, 0, 0},
		{"all idle", 0, 10, 0},
		{"all active", 10, 0, 100},
		{"efficiency aggregate", 30, 40, 100 * 30.0 / 70.0},
		{"tick rates", 1500, 3500, 30},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := utilization.Percent(tc.active, tc.idle)
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestPercentBounds(t *testing.T) {
	for _, a := range []float64{0, 1e-12, 0.5, 3, 1e6, 1e300} {
		for _, i := range []float64{0, 1e-12, 0.5, 3, 1e6, 1e300} {
			got, err := utilization.Percent(a, i)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 100.0)
		}
	}
}

func TestPercentRejectsNonFinite(t *testing.T) {
	for _, pair := range [][2]float64{
		{math.NaN(), 1},
		{1, math.NaN()},
		{math.Inf(1), 1},
		{1, math.Inf(-1)},
	} {
		_, err := utilization.Percent(pair[0], pair[1])
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, utilization.ErrInvalidInput))
	}
}
