package rate_test

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"codeberg.org/mutker/thrud/internal/metrics"
	"codeberg.org/mutker/thrud/internal/rate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.UnixMilli(0)

func at(ms int64) time.Time {
	return epoch.Add(time.Duration(ms) * time.Millisecond)
}

func tick(name string, core int, ct metrics.CoreType, cluster int, ms int64, value int64) metrics.Sample {
	return metrics.Sample{
		Name:      name,
		Value:     metrics.Int(value),
		Timestamp: at(ms),
		Tags:      metrics.CoreTags(core, ct, cluster),
	}
}

func TestComputeSinglePair(t *testing.T) {
	res := rate.Compute([]metrics.Sample{
		tick(metrics.MetricCPUIdleTicks, 0, metrics.CoreTypeEfficiency, 0, 1000, 8500),
		tick(metrics.MetricCPUIdleTicks, 0, metrics.CoreTypeEfficiency, 0, 1100, 8850),
	}, time.Minute, at(1100))

	require.Len(t, res.Rates, 1)
	r := res.Rates[0]
	assert.Equal(t, metrics.MetricCPUIdleTicks, r.Metric)
	assert.Equal(t, 0, r.CoreID)
	assert.InDelta(t, 3500.0, r.PerSecond, 1e-9)
	assert.True(t, at(1100).Equal(r.ComputedAt))
	assert.Empty(t, res.Issues)
}

func TestComputeRateMatchesFormula(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		v1 := rng.Int63n(1 << 40)
		v2 := v1 + rng.Int63n(1<<20)
		t1 := rng.Int63n(1 << 30)
		t2 := t1 + 1 + rng.Int63n(10_000)

		res := rate.Compute([]metrics.Sample{
			tick(metrics.MetricCPUUserTicks, 1, metrics.CoreTypePerformance, 0, t1, v1),
			tick(metrics.MetricCPUUserTicks, 1, metrics.CoreTypePerformance, 0, t2, v2),
		}, time.Duration(t2-t1+1)*time.Millisecond, at(t2))

		require.Len(t, res.Rates, 1)
		want := float64(v2-v1) / (float64(t2-t1) / 1000)
		assertRate(t, want, res.Rates[0].PerSecond)
	}
}

func TestComputeSmallRatesAreExact(t *testing.T) {
	cases := []struct {
		delta int64
		dtMs  int64
	}{
		{0, 1000},
		{1, 10_000},
		{1, 3_600_000},
		{3, 7},
		{1, 1},
	}
	for _, tc := range cases {
		res := rate.Compute([]metrics.Sample{
			tick(metrics.MetricCPUNiceTicks, 2, metrics.CoreTypePerformance, 0, 1000, 42),
			tick(metrics.MetricCPUNiceTicks, 2, metrics.CoreTypePerformance, 0, 1000+tc.dtMs, 42+tc.delta),
		}, time.Duration(tc.dtMs+1)*time.Millisecond, at(1000+tc.dtMs))

		require.Len(t, res.Rates, 1)
		assertRate(t, float64(tc.delta)/(float64(tc.dtMs)/1000), res.Rates[0].PerSecond)
	}
}

// assertRate checks got against want with a relative tolerance of 1e-9; a
// zero rate must be exactly zero.
func assertRate(t *testing.T, want, got float64) {
	t.Helper()
	if want == 0 {
		assert.InDelta(t, 0.0, got, 0)
		return
	}
	assert.InEpsilon(t, want, got, 1e-9)
}

func TestComputeSkipsCounterReset(t *testing.T) {
	res := rate.Compute([]metrics.Sample{
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypeEfficiency, 0, 1000, 500),
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypeEfficiency, 0, 2000, 100),
	}, time.Minute, at(2000))

	assert.True(t, res.Empty())
	require.Len(t, res.Issues, 1)
	assert.Equal(t, rate.ErrCounterAnomaly, res.Issues[0].Code)
	assert.Equal(t, "counter reset", res.Issues[0].Reason)

	res = rate.Compute([]metrics.Sample{
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypeEfficiency, 0, 1000, 500),
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypeEfficiency, 0, 2000, 100),
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypeEfficiency, 0, 3000, 400),
	}, time.Minute, at(3000))

	require.Len(t, res.Rates, 1)
	assert.InDelta(t, 300.0, res.Rates[0].PerSecond, 1e-9)
}

func TestComputeSkipsEqualTimestamps(t *testing.T) {
	res := rate.Compute([]metrics.Sample{
		tick(metrics.MetricCPUIdleTicks, 0, metrics.CoreTypeEfficiency, 0, 1000, 10),
		tick(metrics.MetricCPUIdleTicks, 0, metrics.CoreTypeEfficiency, 0, 1000, 20),
	}, time.Minute, at(1000))

	assert.True(t, res.Empty())
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "duplicate timestamp", res.Issues[0].Reason)
}

func TestComputeNeedsTwoSamplesInWindow(t *testing.T) {
	samples := []metrics.Sample{
		tick(metrics.MetricCPUIdleTicks, 0, metrics.CoreTypeEfficiency, 0, 1000, 10),
		tick(metrics.MetricCPUIdleTicks, 0, metrics.CoreTypeEfficiency, 0, 90_000, 20),
	}

	// the first sample is outside the 60s window ending at 90s
	res := rate.Compute(samples, time.Minute, at(90_000))
	assert.True(t, res.Empty())
	assert.Empty(t, res.Cores)

	// samples after now are ignored too
	res = rate.Compute(samples, 2*time.Minute, at(50_000))
	assert.True(t, res.Empty())

	res = rate.Compute(samples, 2*time.Minute, at(90_000))
	require.Len(t, res.Rates, 1)
}

func TestComputeWindowStartIsExclusive(t *testing.T) {
	samples := []metrics.Sample{
		tick(metrics.MetricCPUIdleTicks, 0, metrics.CoreTypeEfficiency, 0, 0, 10),
		tick(metrics.MetricCPUIdleTicks, 0, metrics.CoreTypeEfficiency, 0, 60_000, 20),
	}
	assert.True(t, rate.Compute(samples, time.Minute, at(60_000)).Empty())
}

func TestComputeUsesMostRecentPair(t *testing.T) {
	res := rate.Compute([]metrics.Sample{
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypePerformance, 0, 3000, 700),
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypePerformance, 0, 1000, 100),
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypePerformance, 0, 2000, 200),
	}, time.Minute, at(3000))

	require.Len(t, res.Rates, 1)
	assert.InDelta(t, 500.0, res.Rates[0].PerSecond, 1e-9)
}

func TestComputeDoesNotDifferenceAcrossPartitions(t *testing.T) {
	res := rate.Compute([]metrics.Sample{
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypePerformance, 0, 1000, 100),
		tick(metrics.MetricCPUUserTicks, 1, metrics.CoreTypePerformance, 0, 2000, 900),
		tick(metrics.MetricCPUIdleTicks, 0, metrics.CoreTypePerformance, 0, 2000, 50),
	}, time.Minute, at(2000))

	assert.True(t, res.Empty())
}

func TestComputeClassAggregate(t *testing.T) {
	var samples []metrics.Sample
	add := func(core int, active, idle int64) {
		samples = append(samples,
			tick(metrics.MetricCPUUserTicks, core, metrics.CoreTypeEfficiency, 0, 1000, 0),
			tick(metrics.MetricCPUUserTicks, core, metrics.CoreTypeEfficiency, 0, 2000, active),
			tick(metrics.MetricCPUIdleTicks, core, metrics.CoreTypeEfficiency, 0, 1000, 0),
			tick(metrics.MetricCPUIdleTicks, core, metrics.CoreTypeEfficiency, 0, 2000, idle),
		)
	}
	add(0, 10, 30)
	add(1, 20, 10)

	res := rate.Compute(samples, time.Minute, at(2000))

	eff, ok := res.CoreType(metrics.CoreTypeEfficiency)
	require.True(t, ok)
	assert.InDelta(t, 30.0, eff.Active, 1e-9)
	assert.InDelta(t, 40.0, eff.Idle, 1e-9)
	assert.Equal(t, 2, eff.CoreCount)
	assert.InDelta(t, 42.857142857, eff.Utilization, 1e-6)
	assert.Equal(t, "efficiency", eff.Key())

	_, ok = res.CoreType(metrics.CoreTypePerformance)
	assert.False(t, ok)

	require.Len(t, res.Clusters, 1)
	assert.Equal(t, "cluster 0", res.Clusters[0].Key())
	assert.InDelta(t, eff.Utilization, res.Clusters[0].Utilization, 1e-9)

	require.Len(t, res.Cores, 2)
	assert.InDelta(t, 25.0, res.Cores[0].Utilization, 1e-9)
	assert.InDelta(t, 66.666666666, res.Cores[1].Utilization, 1e-6)
}

func TestComputeCoreCountOnlyCountsActiveContributors(t *testing.T) {
	res := rate.Compute([]metrics.Sample{
		tick(metrics.MetricCPUSystemTicks, 0, metrics.CoreTypePerformance, 1, 1000, 0),
		tick(metrics.MetricCPUSystemTicks, 0, metrics.CoreTypePerformance, 1, 2000, 5),
		tick(metrics.MetricCPUIdleTicks, 1, metrics.CoreTypePerformance, 1, 1000, 0),
		tick(metrics.MetricCPUIdleTicks, 1, metrics.CoreTypePerformance, 1, 2000, 5),
	}, time.Minute, at(2000))

	perf, ok := res.CoreType(metrics.CoreTypePerformance)
	require.True(t, ok)
	assert.Equal(t, 1, perf.CoreCount)
	assert.InDelta(t, 50.0, perf.Utilization, 1e-9)
}

func TestComputeOrdersCoresNumerically(t *testing.T) {
	var samples []metrics.Sample
	for _, core := range []int{10, 2, 1} {
		samples = append(samples,
			tick(metrics.MetricCPUIdleTicks, core, metrics.CoreTypeEfficiency, 0, 1000, 0),
			tick(metrics.MetricCPUIdleTicks, core, metrics.CoreTypeEfficiency, 0, 2000, 100),
		)
	}

	res := rate.Compute(samples, time.Minute, at(2000))
	require.Len(t, res.Cores, 3)
	assert.Equal(t, 1, res.Cores[0].CoreID)
	assert.Equal(t, 2, res.Cores[1].CoreID)
	assert.Equal(t, 10, res.Cores[2].CoreID)
}

func TestComputeUnclassifiedCore(t *testing.T) {
	res := rate.Compute([]metrics.Sample{
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypePerformance, 0, 1000, 0),
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypePerformance, 0, 2000, 50),
		tick(metrics.MetricCPUUserTicks, 3, metrics.CoreTypeUnknown, metrics.NoCluster, 1000, 0),
		tick(metrics.MetricCPUUserTicks, 3, metrics.CoreTypeUnknown, metrics.NoCluster, 2000, 80),
	}, time.Minute, at(2000))

	require.Len(t, res.Cores, 2)
	assert.Equal(t, metrics.CoreTypeUnknown, res.Cores[1].CoreType)
	assert.InDelta(t, 80.0, res.Cores[1].Rates[metrics.MetricCPUUserTicks], 1e-9)

	require.Len(t, res.CoreTypes, 1)
	assert.Equal(t, 1, res.CoreTypes[0].CoreCount)
	assert.InDelta(t, 50.0, res.CoreTypes[0].Active, 1e-9)
	require.Len(t, res.Clusters, 1)

	var reasons []string
	for _, issue := range res.Issues {
		assert.Equal(t, rate.ErrMissingClassification, issue.Code)
		assert.Equal(t, 3, issue.CoreID)
		reasons = append(reasons, issue.Reason)
	}
	assert.ElementsMatch(t, []string{"missing or unknown core_type", "missing cluster_id"}, reasons)
}

func TestComputeReportsInvalidSamples(t *testing.T) {
	bad := []metrics.Sample{
		{Name: metrics.MetricCPUUserTicks, Value: metrics.Text("n/a"), Timestamp: at(1500), Tags: metrics.CoreTags(0, metrics.CoreTypeEfficiency, 0)},
		{Name: metrics.MetricCPUUserTicks, Value: metrics.Float(math.Inf(1)), Timestamp: at(1600), Tags: metrics.CoreTags(0, metrics.CoreTypeEfficiency, 0)},
		{Name: metrics.MetricCPUUserTicks, Value: metrics.Int(5), Timestamp: at(1700)},
	}
	samples := append(bad,
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypeEfficiency, 0, 1000, 0),
		tick(metrics.MetricCPUUserTicks, 0, metrics.CoreTypeEfficiency, 0, 2000, 10),
	)

	res := rate.Compute(samples, time.Minute, at(2000))
	require.Len(t, res.Rates, 1)
	assert.InDelta(t, 10.0, res.Rates[0].PerSecond, 1e-9)

	require.Len(t, res.Issues, 3)
	assert.Equal(t, rate.ErrInvalidSample, res.Issues[0].Code)
	assert.Equal(t, rate.ErrInvalidSample, res.Issues[1].Code)
	assert.Equal(t, rate.ErrMissingClassification, res.Issues[2].Code)
	assert.Equal(t, -1, res.Issues[2].CoreID)
}

func TestComputeDefaultWindow(t *testing.T) {
	res := rate.Compute(nil, 0, at(0))
	assert.Equal(t, rate.DefaultWindow, res.Window)
	assert.True(t, res.Empty())
}
