package cpu

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codeberg.org/mutker/thrud/internal/metrics"
)

// Hybrid Intel parts list their P-cores and E-cores under these PMU
// devices.
const (
	performanceList = "devices/cpu_core/cpus"
	efficiencyList  = "devices/cpu_atom/cpus"
)

type topology struct {
	sysPath     string
	fallback    metrics.CoreType
	performance map[int]bool
	efficiency  map[int]bool
	clusters    map[int]int
}

func loadTopology(sysPath string, fallback metrics.CoreType) *topology {
	return &topology{
		sysPath:     sysPath,
		fallback:    fallback,
		performance: readCPUList(filepath.Join(sysPath, performanceList)),
		efficiency:  readCPUList(filepath.Join(sysPath, efficiencyList)),
		clusters:    make(map[int]int),
	}
}

func (t *topology) hybrid() bool {
	return len(t.performance) > 0 || len(t.efficiency) > 0
}

// tag classifies one logical CPU. On hybrid parts a CPU in neither list
// stays unknown.
func (t *topology) tag(id int) metrics.Tags {
	coreType := metrics.CoreTypeUnknown
	switch {
	case t.performance[id]:
		coreType = metrics.CoreTypePerformance
	case t.efficiency[id]:
		coreType = metrics.CoreTypeEfficiency
	case !t.hybrid():
		coreType = t.fallback
	}

	return metrics.CoreTags(id, coreType, t.cluster(id))
}

func (t *topology) cluster(id int) int {
	if c, ok := t.clusters[id]; ok {
		return c
	}

	c := metrics.NoCluster
	path := filepath.Join(t.sysPath, "devices/system/cpu", "cpu"+strconv.Itoa(id), "topology/cluster_id")
	if raw, err := os.ReadFile(path); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(string(raw))); err == nil && v >= 0 {
			c = v
		}
	}
	t.clusters[id] = c

	return c
}

// readCPUList parses a sysfs cpu list such as "0-7,16,18-19". A missing
// or malformed file yields an empty set.
func readCPUList(path string) map[int]bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	set, ok := parseCPUList(strings.TrimSpace(string(raw)))
	if !ok {
		return nil
	}
	return set
}

func parseCPUList(s string) (map[int]bool, bool) {
	set := make(map[int]bool)
	if s == "" {
		return set, true
	}
	for _, part := range strings.Split(s, ",") {
		lo, hi, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(lo)
		if err != nil {
			return nil, false
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(hi); err != nil || end < start {
				return nil, false
			}
		}
		for i := start; i <= end; i++ {
			set[i] = true
		}
	}
	return set, true
}
