// Package rate turns cumulative per-core tick counters into per-second
// rates, per-core utilization and aggregates by core type and cluster.
//
// Samples are partitioned by (metric, core id). Each partition is sorted by
// timestamp and its consecutive pairs inside the window are folded; the
// most recent valid pair gives the partition's rate. Pairs whose value went
// down (counter reset) or whose timestamps are equal are skipped.
package rate

import (
	"math"
	"sort"
	"strconv"
	"time"

	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/metrics"
	"codeberg.org/mutker/thrud/internal/utilization"
)

// DefaultWindow is used when no positive window is given.
const DefaultWindow = 60 * time.Second

// Role says how a counter contributes to utilization.
type Role int

const (
	RoleOther Role = iota
	RoleActive
	RoleIdle
)

// RoleOf returns the utilization role of a tick metric.
func RoleOf(metric string) Role {
	switch metric {
	case metrics.MetricCPUUserTicks, metrics.MetricCPUSystemTicks, metrics.MetricCPUNiceTicks:
		return RoleActive
	case metrics.MetricCPUIdleTicks:
		return RoleIdle
	default:
		return RoleOther
	}
}

// Rate is the latest per-second rate of one partition.
type Rate struct {
	Metric     string
	CoreID     int
	CoreType   metrics.CoreType
	ClusterID  int
	PerSecond  float64
	ComputedAt time.Time
}

// CoreUtilization is the latest rates of one core. Rates holds one entry
// per metric that produced a rate.
type CoreUtilization struct {
	CoreID      int
	CoreType    metrics.CoreType
	ClusterID   int
	Rates       map[string]float64
	Active      float64
	Idle        float64
	Utilization float64
}

// ClassKind names the classification an aggregate groups by.
type ClassKind string

const (
	ByCoreType ClassKind = "core_type"
	ByCluster  ClassKind = "cluster"
)

// ClassAggregate sums the latest rates of every classified core in one
// class. CoreCount is the number of distinct cores in the active sum.
type ClassAggregate struct {
	Kind        ClassKind
	CoreType    metrics.CoreType
	ClusterID   int
	Active      float64
	Idle        float64
	CoreCount   int
	Utilization float64
}

// Key is the printable class label.
func (a ClassAggregate) Key() string {
	if a.Kind == ByCluster {
		return "cluster " + strconv.Itoa(a.ClusterID)
	}
	return a.CoreType.String()
}

// Issue records a sample or partition the engine could not use as is.
type Issue struct {
	Code      errors.ErrorCode
	Metric    string
	CoreID    int
	Reason    string
	Timestamp time.Time
}

// Result is everything computed for one window.
type Result struct {
	Window    time.Duration
	Now       time.Time
	Rates     []Rate
	Cores     []CoreUtilization
	CoreTypes []ClassAggregate
	Clusters  []ClassAggregate
	Issues    []Issue
}

// Empty reports whether no partition produced a rate.
func (r Result) Empty() bool {
	return len(r.Rates) == 0
}

// CoreType returns the aggregate for ct, if any core of that type had rates.
func (r Result) CoreType(ct metrics.CoreType) (ClassAggregate, bool) {
	for _, a := range r.CoreTypes {
		if a.CoreType == ct {
			return a, true
		}
	}
	return ClassAggregate{}, false
}

type partitionKey struct {
	metric string
	core   int
}

type point struct {
	value float64
	ts    time.Time
}

type partition struct {
	key    partitionKey
	tags   metrics.CoreTag
	tagsAt time.Time
	points []point
}

// Compute derives rates from samples inside (now-window, now]. It does not
// touch storage and never fails: unusable input is reported as issues.
func Compute(samples []metrics.Sample, window time.Duration, now time.Time) Result {
	if window <= 0 {
		window = DefaultWindow
	}
	res := Result{Window: window, Now: now}
	start := now.Add(-window)

	// Pass 1: group by partition and sort each partition by time.
	parts := make(map[partitionKey]*partition)
	for _, s := range samples {
		if !s.Timestamp.After(start) || s.Timestamp.After(now) {
			continue
		}
		if s.Tags.Core == nil {
			res.issue(ErrMissingClassification, s.Name, -1, "missing core_id", s.Timestamp)
			continue
		}
		core := *s.Tags.Core
		v, ok := s.Value.Number()
		if !ok {
			res.issue(ErrInvalidSample, s.Name, core.ID, "non-numeric "+string(s.Value.Kind)+" value", s.Timestamp)
			continue
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			res.issue(ErrInvalidSample, s.Name, core.ID, "non-finite value", s.Timestamp)
			continue
		}

		key := partitionKey{metric: s.Name, core: core.ID}
		p, ok := parts[key]
		if !ok {
			p = &partition{key: key}
			parts[key] = p
		}
		p.points = append(p.points, point{value: v, ts: s.Timestamp})
		// the latest sample's tags classify the partition
		if len(p.points) == 1 || !s.Timestamp.Before(p.tagsAt) {
			p.tags = core
			p.tagsAt = s.Timestamp
		}
	}

	keys := make([]partitionKey, 0, len(parts))
	for k, p := range parts {
		sort.SliceStable(p.points, func(i, j int) bool {
			return p.points[i].ts.Before(p.points[j].ts)
		})
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].core != keys[j].core {
			return keys[i].core < keys[j].core
		}
		return keys[i].metric < keys[j].metric
	})

	// Pass 2: fold consecutive pairs, keeping the most recent valid one.
	for _, k := range keys {
		if r, ok := res.fold(parts[k]); ok {
			res.Rates = append(res.Rates, r)
		}
	}

	res.aggregate()
	return res
}

func (res *Result) fold(p *partition) (Rate, bool) {
	var (
		best  Rate
		found bool
	)
	for i := 1; i < len(p.points); i++ {
		prev, curr := p.points[i-1], p.points[i]
		dt := curr.ts.Sub(prev.ts)
		if dt <= 0 {
			res.issue(ErrCounterAnomaly, p.key.metric, p.key.core, "duplicate timestamp", curr.ts)
			continue
		}
		delta := curr.value - prev.value
		if delta < 0 {
			res.issue(ErrCounterAnomaly, p.key.metric, p.key.core, "counter reset", curr.ts)
			continue
		}
		best = Rate{
			Metric:     p.key.metric,
			CoreID:     p.key.core,
			CoreType:   p.tags.Type,
			ClusterID:  p.tags.ClusterID,
			PerSecond:  delta / dt.Seconds(),
			ComputedAt: curr.ts,
		}
		found = true
	}
	return best, found
}

// aggregate builds per-core rows and class sums from res.Rates.
func (res *Result) aggregate() {
	cores := make(map[int]*CoreUtilization)
	var order []int
	for _, r := range res.Rates {
		c, ok := cores[r.CoreID]
		if !ok {
			c = &CoreUtilization{
				CoreID:    r.CoreID,
				CoreType:  r.CoreType,
				ClusterID: r.ClusterID,
				Rates:     make(map[string]float64),
			}
			cores[r.CoreID] = c
			order = append(order, r.CoreID)
		}
		c.Rates[r.Metric] = r.PerSecond
		switch RoleOf(r.Metric) {
		case RoleActive:
			c.Active += r.PerSecond
		case RoleIdle:
			c.Idle += r.PerSecond
		}
	}

	byType := make(map[metrics.CoreType]*ClassAggregate)
	byCluster := make(map[int]*ClassAggregate)
	for _, id := range order {
		c := cores[id]
		c.Utilization = res.percent(c.Active, c.Idle, c.CoreID)
		res.Cores = append(res.Cores, *c)

		if c.CoreType == metrics.CoreTypeUnknown {
			res.issue(ErrMissingClassification, "", c.CoreID, "missing or unknown core_type", time.Time{})
		} else {
			addTo(byType, c.CoreType, c, ClassAggregate{Kind: ByCoreType, CoreType: c.CoreType, ClusterID: metrics.NoCluster})
		}
		if c.ClusterID == metrics.NoCluster {
			res.issue(ErrMissingClassification, "", c.CoreID, "missing cluster_id", time.Time{})
		} else {
			addTo(byCluster, c.ClusterID, c, ClassAggregate{Kind: ByCluster, CoreType: metrics.CoreTypeUnknown, ClusterID: c.ClusterID})
		}
	}

	for _, ct := range metrics.CoreTypes {
		if a, ok := byType[ct]; ok {
			a.Utilization = res.percent(a.Active, a.Idle, -1)
			res.CoreTypes = append(res.CoreTypes, *a)
		}
	}
	clusterIDs := make([]int, 0, len(byCluster))
	for id := range byCluster {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Ints(clusterIDs)
	for _, id := range clusterIDs {
		a := byCluster[id]
		a.Utilization = res.percent(a.Active, a.Idle, -1)
		res.Clusters = append(res.Clusters, *a)
	}
}

func addTo[K comparable](m map[K]*ClassAggregate, key K, c *CoreUtilization, init ClassAggregate) {
	a, ok := m[key]
	if !ok {
		a = &init
		m[key] = a
	}
	a.Active += c.Active
	a.Idle += c.Idle
	if hasActive(c) {
		a.CoreCount++
	}
}

func hasActive(c *CoreUtilization) bool {
	for metric := range c.Rates {
		if RoleOf(metric) == RoleActive {
			return true
		}
	}
	return false
}

func (res *Result) percent(active, idle float64, core int) float64 {
	p, err := utilization.Percent(active, idle)
	if err != nil {
		res.issue(ErrInvalidSample, "", core, err.Error(), time.Time{})
		return 0
	}
	return p
}

func (res *Result) issue(code errors.ErrorCode, metric string, core int, reason string, ts time.Time) {
	res.Issues = append(res.Issues, Issue{
		Code:      code,
		Metric:    metric,
		CoreID:    core,
		Reason:    reason,
		Timestamp: ts,
	})
}

