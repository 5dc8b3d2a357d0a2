package collector_test

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/thrud/internal/chart"
	"codeberg.org/mutker/thrud/internal/collector"
	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/logger"
	"codeberg.org/mutker/thrud/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tickSource emits steadily growing counters: the performance core runs at
// 50%, the efficiency core at 25% and the GPU at 80%.
type tickSource struct {
	base  time.Time
	calls int64
}

func (*tickSource) Name() string { return "fake" }

func (s *tickSource) Collect(context.Context) ([]metrics.Sample, error) {
	s.calls++
	ts := s.base.Add(time.Duration(s.calls) * time.Second)
	perf := metrics.CoreTags(0, metrics.CoreTypePerformance, 0)
	eff := metrics.CoreTags(1, metrics.CoreTypeEfficiency, 1)
	return []metrics.Sample{
		{Name: metrics.MetricCPUUserTicks, Value: metrics.Int(50 * s.calls), Timestamp: ts, Tags: perf},
		{Name: metrics.MetricCPUIdleTicks, Value: metrics.Int(50 * s.calls), Timestamp: ts, Tags: perf},
		{Name: metrics.MetricCPUUserTicks, Value: metrics.Int(25 * s.calls), Timestamp: ts, Tags: eff},
		{Name: metrics.MetricCPUIdleTicks, Value: metrics.Int(75 * s.calls), Timestamp: ts, Tags: eff},
		{Name: metrics.MetricGPUUtilization, Value: metrics.Float(80), Timestamp: ts, Tags: metrics.GPUTags(0, "gpu0")},
	}, nil
}

type brokenSource struct{}

func (brokenSource) Name() string { return "broken" }

func (brokenSource) Collect(context.Context) ([]metrics.Sample, error) {
	return nil, stderrors.New("device gone")
}

type fakeRecorder struct {
	mu       sync.Mutex
	rounds   int
	samples  int
	charts   int
	pruned   int64
	failures map[string]int
	util     map[string]float64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{failures: map[string]int{}, util: map[string]float64{}}
}

func (r *fakeRecorder) RoundStored(samples int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds++
	r.samples += samples
}

func (r *fakeRecorder) SourceFailed(source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[source]++
}

func (r *fakeRecorder) ChartsStored(n int)          { r.charts += n }
func (r *fakeRecorder) RoundsPruned(n int64)        { r.pruned += n }
func (*fakeRecorder) StoreSize(int64)               {}
func (*fakeRecorder) Serve(context.Context) error   { return nil }
func (*fakeRecorder) Close() error                  { return nil }

func (r *fakeRecorder) Utilization(class string, percent float64) {
	r.util[class] = percent
}

type pruneSpy struct {
	*metrics.Repository
	before []time.Time
}

func (p *pruneSpy) Prune(ctx context.Context, before time.Time) (int64, error) {
	p.before = append(p.before, before)
	return p.Repository.Prune(ctx, before)
}

func openStore(t *testing.T) *metrics.Repository {
	t.Helper()
	repo, err := metrics.NewRepository(metrics.DefaultConfig(filepath.Join(t.TempDir(), "thrud.db")), logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestRunOnceGeneratesChartsAfterTwoPoints(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	rec := newFakeRecorder()
	src := &tickSource{base: time.Now().Add(-10 * time.Second)}

	svc, err := collector.NewService(collector.DefaultConfig(), store, []collector.Source{src}, rec, logger.Nop())
	require.NoError(t, err)

	// two rounds give a single utilization point: no charts yet
	for i := 0; i < 2; i++ {
		_, err := svc.RunOnce(ctx)
		require.NoError(t, err)
	}
	charts, err := store.LatestCharts(ctx, collector.ChartMetrics, chart.Bar, 10)
	require.NoError(t, err)
	assert.Empty(t, charts)

	round, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rec.rounds)
	assert.Equal(t, 15, rec.samples)
	assert.Equal(t, 6, rec.charts)

	bars, err := store.LatestCharts(ctx, collector.ChartMetrics, chart.Bar, 1)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	assert.Equal(t, round.ID, bars[0].RoundID)
	assert.Equal(t, collector.ChartPerformance, bars[0].MetricName)
	assert.Equal(t, "▄▄..50%|", bars[0].Data)
	assert.Equal(t, 2, bars[0].DataPoints)
	assert.Equal(t, "▂▂..25%|", bars[1].Data)
	assert.Equal(t, "▇▇..80%|", bars[2].Data)

	braille, err := store.LatestCharts(ctx, []string{collector.ChartGPU}, chart.Braille, 1)
	require.NoError(t, err)
	require.Len(t, braille, 1)
	assert.Equal(t, chart.EncodeBraille([]float64{80, 80}), braille[0].Data)

	assert.InDelta(t, 50.0, rec.util["performance"], 1e-9)
	assert.InDelta(t, 25.0, rec.util["efficiency"], 1e-9)
}

func TestRunOnceContinuesPastFailingSource(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	rec := newFakeRecorder()
	src := &tickSource{base: time.Now()}

	svc, err := collector.NewService(collector.DefaultConfig(), store,
		[]collector.Source{brokenSource{}, src}, rec, logger.Nop())
	require.NoError(t, err)

	round, err := svc.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, round.SampleCount)
	assert.Equal(t, 1, rec.failures["broken"])
}

func TestRunOnceWithoutSamples(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	svc, err := collector.NewService(collector.DefaultConfig(), store,
		[]collector.Source{brokenSource{}}, newFakeRecorder(), logger.Nop())
	require.NoError(t, err)

	_, err = svc.RunOnce(ctx)
	assert.True(t, errors.HasCode(err, collector.ErrNoSamples))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalRounds)
}

func TestRunOnceAppliesRetention(t *testing.T) {
	ctx := context.Background()
	spy := &pruneSpy{Repository: openStore(t)}
	cfg := collector.DefaultConfig()
	cfg.Retention = 24 * time.Hour

	svc, err := collector.NewService(cfg, spy, []collector.Source{&tickSource{base: time.Now()}}, newFakeRecorder(), logger.Nop())
	require.NoError(t, err)

	before := time.Now()
	_, err = svc.RunOnce(ctx)
	require.NoError(t, err)

	require.Len(t, spy.before, 1)
	assert.WithinDuration(t, before.Add(-24*time.Hour), spy.before[0], 5*time.Second)
}

func TestConfigValidate(t *testing.T) {
	cfg := collector.DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.ChartPoints = 1
	assert.True(t, errors.HasCode(cfg.Validate(), collector.ErrInvalidConfig))

	cfg = collector.DefaultConfig()
	cfg.Window = 0
	assert.True(t, errors.HasCode(cfg.Validate(), errors.ErrInvalidWindow))

	cfg = collector.DefaultConfig()
	cfg.Retention = -time.Second
	assert.Error(t, cfg.Validate())
}
