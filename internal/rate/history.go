package rate

import (
	"math"
	"sort"
	"time"

	"codeberg.org/mutker/thrud/internal/metrics"
	"codeberg.org/mutker/thrud/internal/utilization"
)

// RoundUtilization is the utilization observed between one collection
// round and the latest earlier round that carried core ticks.
type RoundUtilization struct {
	RoundID   string
	Timestamp time.Time
	// CoreTypes holds a percentage for every core type with at least one
	// core present in both rounds without a counter reset. It is empty when
	// the round itself carried no core ticks.
	CoreTypes map[metrics.CoreType]float64
	// GPU is the mean gpu_utilization of the round; HasGPU is false when
	// the round carried no GPU sample.
	GPU    float64
	HasGPU bool
}

type coreTicks struct {
	coreType metrics.CoreType
	ticks    map[string]float64
}

type roundSnapshot struct {
	id    string
	ts    time.Time
	cores map[int]*coreTicks
	gpu   []float64
}

// History turns the samples of consecutive rounds into a utilization
// series, oldest first. rounds are given newest first, as RecentRounds
// returns them, and are ordered by their collection timestamp. Each round's
// core-type utilization is measured against the latest earlier round that
// carried core ticks, so a round whose CPU source failed does not break the
// series. The oldest round only serves as a baseline, so n rounds yield at
// most n-1 entries.
func History(rounds []metrics.CollectionRound, samples []metrics.StoredSample) []RoundUtilization {
	byID := make(map[string]*roundSnapshot, len(rounds))
	ordered := make([]*roundSnapshot, 0, len(rounds))
	for i := len(rounds) - 1; i >= 0; i-- {
		r := rounds[i]
		if _, dup := byID[r.ID]; dup {
			continue
		}
		snap := &roundSnapshot{id: r.ID, ts: r.Timestamp, cores: make(map[int]*coreTicks)}
		byID[r.ID] = snap
		ordered = append(ordered, snap)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ts.Before(ordered[j].ts)
	})

	for _, s := range samples {
		r, ok := byID[s.RoundID]
		if !ok {
			continue
		}

		v, ok := s.Value.Number()
		if !ok || !finite(v) {
			continue
		}

		switch {
		case s.Name == metrics.MetricGPUUtilization:
			r.gpu = append(r.gpu, v)
		case RoleOf(s.Name) != RoleOther && s.Tags.Core != nil:
			c, ok := r.cores[s.Tags.Core.ID]
			if !ok {
				c = &coreTicks{ticks: make(map[string]float64)}
				r.cores[s.Tags.Core.ID] = c
			}
			c.coreType = s.Tags.Core.Type
			c.ticks[s.Name] = v
		}
	}

	var out []RoundUtilization
	var baseline *roundSnapshot
	for i, curr := range ordered {
		if i > 0 {
			ru := RoundUtilization{
				RoundID:   curr.id,
				Timestamp: curr.ts,
				CoreTypes: map[metrics.CoreType]float64{},
			}
			if baseline != nil {
				ru.CoreTypes = deltaUtilization(baseline, curr)
			}
			if len(curr.gpu) > 0 {
				ru.GPU = mean(curr.gpu)
				ru.HasGPU = true
			}
			out = append(out, ru)
		}
		if len(curr.cores) > 0 {
			baseline = curr
		}
	}
	return out
}

// deltaUtilization sums tick deltas per core type. A core whose counters
// went backwards between the two rounds is left out.
func deltaUtilization(prev, curr *roundSnapshot) map[metrics.CoreType]float64 {
	type sums struct{ active, idle float64 }
	byType := make(map[metrics.CoreType]*sums)

	for id, c := range curr.cores {
		if c.coreType == metrics.CoreTypeUnknown {
			continue
		}
		p, ok := prev.cores[id]
		if !ok {
			continue
		}

		var active, idle float64
		valid, reset := false, false
		for metric, v := range c.ticks {
			before, ok := p.ticks[metric]
			if !ok {
				continue
			}
			delta := v - before
			if delta < 0 {
				reset = true
				break
			}
			valid = true
			if RoleOf(metric) == RoleIdle {
				idle += delta
			} else {
				active += delta
			}
		}
		if reset || !valid {
			continue
		}

		s, ok := byType[c.coreType]
		if !ok {
			s = &sums{}
			byType[c.coreType] = s
		}
		s.active += active
		s.idle += idle
	}

	out := make(map[metrics.CoreType]float64, len(byType))
	for ct, s := range byType {
		if p, err := utilization.Percent(s.active, s.idle); err == nil {
			out[ct] = p
		}
	}
	return out
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
