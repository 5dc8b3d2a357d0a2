package metrics

import (
	"encoding/json"
	"strconv"
)

// Metadata keys used in the stored JSON object.
const (
	keyCoreID    = "core_id"
	keyCoreType  = "core_type"
	keyClusterID = "cluster_id"
	keyGPUIndex  = "gpu_index"
	keyGPUName   = "gpu_name"
)

// NoCluster marks a core whose cluster is unknown.
const NoCluster = -1

// CoreType classifies a CPU core.
type CoreType int

const (
	CoreTypeUnknown CoreType = iota
	CoreTypeEfficiency
	CoreTypePerformance
)

// CoreTypes lists the classified core types in report order.
var CoreTypes = []CoreType{CoreTypeEfficiency, CoreTypePerformance}

func (c CoreType) String() string {
	switch c {
	case CoreTypeEfficiency:
		return "efficiency"
	case CoreTypePerformance:
		return "performance"
	default:
		return "unknown"
	}
}

// ParseCoreType maps a stored name to a CoreType. Unrecognised names
// return CoreTypeUnknown and false.
func ParseCoreType(s string) (CoreType, bool) {
	switch s {
	case "efficiency":
		return CoreTypeEfficiency, true
	case "performance":
		return CoreTypePerformance, true
	default:
		return CoreTypeUnknown, false
	}
}

// CoreTag identifies the core a CPU sample belongs to.
type CoreTag struct {
	ID        int
	Type      CoreType
	ClusterID int
}

// GPUTag identifies the GPU a sample belongs to.
type GPUTag struct {
	Index int
	Name  string
}

// Tags is the typed form of a sample's metadata. At most one of Core and
// GPU is set; Extra carries keys with no typed field.
type Tags struct {
	Core  *CoreTag
	GPU   *GPUTag
	Extra map[string]string
}

// CoreTags tags a sample with a classified core.
func CoreTags(id int, coreType CoreType, cluster int) Tags {
	return Tags{Core: &CoreTag{ID: id, Type: coreType, ClusterID: cluster}}
}

// GPUTags tags a sample with a GPU.
func GPUTags(index int, name string) Tags {
	return Tags{GPU: &GPUTag{Index: index, Name: name}}
}

// Metadata flattens t into the stored string map.
func (t Tags) Metadata() map[string]string {
	m := make(map[string]string, len(t.Extra)+3)
	for k, v := range t.Extra {
		m[k] = v
	}
	if t.Core != nil {
		m[keyCoreID] = strconv.Itoa(t.Core.ID)
		if t.Core.Type != CoreTypeUnknown {
			m[keyCoreType] = t.Core.Type.String()
		}
		if t.Core.ClusterID != NoCluster {
			m[keyClusterID] = strconv.Itoa(t.Core.ClusterID)
		}
	}
	if t.GPU != nil {
		m[keyGPUIndex] = strconv.Itoa(t.GPU.Index)
		m[keyGPUName] = t.GPU.Name
	}
	return m
}

func (t Tags) marshal() (string, error) {
	b, err := json.Marshal(t.Metadata())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// TagsFromMetadata rebuilds typed tags from a stored map. A core tag is
// only produced when core_id is an integer; a missing or unknown core_type
// leaves Type as CoreTypeUnknown and a missing cluster_id leaves ClusterID
// as NoCluster. "unknown" and the NoCluster value written by older rows are
// consumed as well. Other keys that fail to parse stay in Extra.
func TagsFromMetadata(m map[string]string) Tags {
	var t Tags
	extra := make(map[string]string)
	for k, v := range m {
		extra[k] = v
	}

	if raw, ok := m[keyCoreID]; ok {
		if id, err := strconv.Atoi(raw); err == nil {
			core := &CoreTag{ID: id, ClusterID: NoCluster}
			delete(extra, keyCoreID)
			if ct, ok := ParseCoreType(m[keyCoreType]); ok {
				core.Type = ct
				delete(extra, keyCoreType)
			} else if m[keyCoreType] == CoreTypeUnknown.String() {
				delete(extra, keyCoreType)
			}
			if cl, err := strconv.Atoi(m[keyClusterID]); err == nil && (cl >= 0 || cl == NoCluster) {
				core.ClusterID = cl
				delete(extra, keyClusterID)
			}
			t.Core = core
		}
	}

	if raw, ok := m[keyGPUIndex]; ok {
		if idx, err := strconv.Atoi(raw); err == nil {
			t.GPU = &GPUTag{Index: idx, Name: m[keyGPUName]}
			delete(extra, keyGPUIndex)
			delete(extra, keyGPUName)
		}
	}

	if len(extra) > 0 {
		t.Extra = extra
	}
	return t
}

func unmarshalTags(raw string) (Tags, error) {
	if raw == "" {
		return Tags{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Tags{}, err
	}
	return TagsFromMetadata(m), nil
}
