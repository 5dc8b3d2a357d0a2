// Package cpu samples per-core tick counters from procfs and classifies
// cores from sysfs.
package cpu

import (
	"context"
	"math"
	"sort"
	"time"

	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/logger"
	"codeberg.org/mutker/thrud/internal/metrics"
	"github.com/prometheus/procfs"
)

// userHZ converts procfs seconds back to kernel ticks.
const userHZ = 100

// Sampler emits user, system, nice and idle ticks for every logical CPU
// plus a cpu_core_count sample.
type Sampler struct {
	fs     procfs.FS
	topo   *topology
	logger logger.Logger
	now    func() time.Time
}

func NewSampler(cfg Config, log logger.Logger) (*Sampler, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	fs, err := procfs.NewFS(cfg.ProcPath)
	if err != nil {
		return nil, errFactory.Wrap(ErrStatFailed, err).WithData(struct {
			Path string
		}{
			Path: cfg.ProcPath,
		})
	}

	topo := loadTopology(cfg.SysPath, cfg.HomogeneousType)
	log.Debug().
		Bool("hybrid", topo.hybrid()).
		Int("performance_cpus", len(topo.performance)).
		Int("efficiency_cpus", len(topo.efficiency)).
		Msg("CPU topology loaded")

	return &Sampler{
		fs:     fs,
		topo:   topo,
		logger: log,
		now:    time.Now,
	}, nil
}

func (*Sampler) Name() string {
	return "cpu"
}

func (s *Sampler) Collect(ctx context.Context) ([]metrics.Sample, error) {
	errFactory := errors.New()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stat, err := s.fs.Stat()
	if err != nil {
		return nil, errFactory.Wrap(ErrStatFailed, err)
	}
	if len(stat.CPU) == 0 {
		return nil, errFactory.New(ErrNoCPUs)
	}

	ids := make([]int, 0, len(stat.CPU))
	byID := make(map[int]procfs.CPUStat, len(stat.CPU))
	for id, st := range stat.CPU {
		ids = append(ids, int(id))
		byID[int(id)] = st
	}
	sort.Ints(ids)

	ts := s.now()
	samples := make([]metrics.Sample, 0, len(ids)*len(metrics.CPUTickMetrics)+1)
	for _, id := range ids {
		st := byID[id]
		tags := s.topo.tag(id)
		for _, c := range []struct {
			name    string
			seconds float64
		}{
			{metrics.MetricCPUUserTicks, st.User},
			{metrics.MetricCPUSystemTicks, st.System},
			{metrics.MetricCPUNiceTicks, st.Nice},
			{metrics.MetricCPUIdleTicks, st.Idle},
		} {
			samples = append(samples, metrics.Sample{
				Name:      c.name,
				Value:     metrics.Int(ticks(c.seconds)),
				Timestamp: ts,
				Tags:      tags,
			})
		}
	}

	samples = append(samples, metrics.Sample{
		Name:      metrics.MetricCPUCoreCount,
		Value:     metrics.Int(int64(len(ids))),
		Timestamp: ts,
	})

	return samples, nil
}

func ticks(seconds float64) int64 {
	return int64(math.Round(seconds * userHZ))
}
