package gpu

import "github.com/NVIDIA/go-nvml/pkg/nvml"

// device is the part of nvml.Device the sampler reads.
type device interface {
	GetName() (string, nvml.Return)
	GetUtilizationRates() (nvml.Utilization, nvml.Return)
	GetTemperature(sensor nvml.TemperatureSensors) (uint32, nvml.Return)
	GetPowerUsage() (uint32, nvml.Return)
	GetFanSpeed() (uint32, nvml.Return)
}

// Reading is one point-in-time snapshot of a GPU. Optional gauges the
// device does not report are left nil.
type Reading struct {
	Index       int
	Name        string
	Utilization float64
	Temperature *int
	PowerWatts  *float64
	FanSpeed    *int
}
