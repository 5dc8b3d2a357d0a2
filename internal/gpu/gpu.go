// Package gpu samples NVIDIA GPUs through NVML.
package gpu

import (
	"context"
	"strconv"
	"time"

	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/logger"
	"codeberg.org/mutker/thrud/internal/metrics"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

const milliWattsToWatts = 1000

// Sampler reads utilization, temperature, power draw and fan speed from
// every visible GPU.
type Sampler struct {
	nvml    nvmlController
	devices []device
	names   []string
	logger  logger.Logger
	now     func() time.Time
}

// NewSampler initializes NVML and discovers devices.
func NewSampler(log logger.Logger) (*Sampler, error) {
	return newSampler(&nvmlWrapper{}, log)
}

func newSampler(ctrl nvmlController, log logger.Logger) (*Sampler, error) {
	errFactory := errors.New()

	if err := ctrl.Initialize(); err != nil {
		return nil, err
	}

	count, err := ctrl.GetDeviceCount()
	if err != nil {
		_ = ctrl.Shutdown()
		return nil, err
	}
	if count == 0 {
		_ = ctrl.Shutdown()
		return nil, errFactory.New(ErrNoDevices)
	}

	s := &Sampler{nvml: ctrl, logger: log, now: time.Now}
	for i := 0; i < count; i++ {
		dev, err := ctrl.GetDevice(i)
		if err != nil {
			_ = ctrl.Shutdown()
			return nil, errFactory.Wrap(ErrDeviceNotFound, err).WithData(struct {
				Index int
			}{
				Index: i,
			})
		}

		name, ret := dev.GetName()
		if !IsNVMLSuccess(ret) {
			log.Warn().Int("index", i).Msgf("Failed to get GPU name: %v", newNVMLError(ret))
			name = "gpu" + strconv.Itoa(i)
		}
		log.Info().Int("index", i).Msgf("Detected GPU: %v", name)

		s.devices = append(s.devices, dev)
		s.names = append(s.names, name)
	}

	return s, nil
}

func (*Sampler) Name() string {
	return "gpu"
}

// Read returns one reading per device. Utilization is required; the other
// gauges are skipped when the device does not support them.
func (s *Sampler) Read() ([]Reading, error) {
	errFactory := errors.New()

	readings := make([]Reading, 0, len(s.devices))
	for i, dev := range s.devices {
		util, ret := dev.GetUtilizationRates()
		if !IsNVMLSuccess(ret) {
			return nil, errFactory.Wrap(ErrUtilizationReadFailed, newNVMLError(ret)).WithData(struct {
				Index int
				Name  string
			}{
				Index: i,
				Name:  s.names[i],
			})
		}

		r := Reading{Index: i, Name: s.names[i], Utilization: float64(util.Gpu)}

		if temp, ret := dev.GetTemperature(nvml.TEMPERATURE_GPU); IsNVMLSuccess(ret) {
			v := int(temp)
			r.Temperature = &v
		} else {
			s.logger.Debug().Int("index", i).Msgf("Temperature unavailable: %v", newNVMLError(ret))
		}

		if mw, ret := dev.GetPowerUsage(); IsNVMLSuccess(ret) {
			v := float64(mw) / milliWattsToWatts
			r.PowerWatts = &v
		} else {
			s.logger.Debug().Int("index", i).Msgf("Power usage unavailable: %v", newNVMLError(ret))
		}

		if speed, ret := dev.GetFanSpeed(); IsNVMLSuccess(ret) {
			v := int(speed)
			r.FanSpeed = &v
		} else {
			s.logger.Debug().Int("index", i).Msgf("Fan speed unavailable: %v", newNVMLError(ret))
		}

		readings = append(readings, r)
	}

	return readings, nil
}

// Collect converts the current readings into samples tagged with the GPU
// index and name.
func (s *Sampler) Collect(ctx context.Context) ([]metrics.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	readings, err := s.Read()
	if err != nil {
		return nil, err
	}

	ts := s.now()
	var samples []metrics.Sample
	for _, r := range readings {
		tags := metrics.GPUTags(r.Index, r.Name)
		samples = append(samples, metrics.Sample{
			Name: metrics.MetricGPUUtilization, Value: metrics.Float(r.Utilization), Timestamp: ts, Tags: tags,
		})
		if r.Temperature != nil {
			samples = append(samples, metrics.Sample{
				Name: metrics.MetricGPUTemperature, Value: metrics.Int(int64(*r.Temperature)), Timestamp: ts, Tags: tags,
			})
		}
		if r.PowerWatts != nil {
			samples = append(samples, metrics.Sample{
				Name: metrics.MetricGPUPower, Value: metrics.Float(*r.PowerWatts), Timestamp: ts, Tags: tags,
			})
		}
		if r.FanSpeed != nil {
			samples = append(samples, metrics.Sample{
				Name: metrics.MetricGPUFanSpeed, Value: metrics.Int(int64(*r.FanSpeed)), Timestamp: ts, Tags: tags,
			})
		}
	}

	return samples, nil
}

func (s *Sampler) Close() error {
	return s.nvml.Shutdown()
}
