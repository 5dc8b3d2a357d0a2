package gpu

import (
	"context"
	"testing"
	"time"

	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/logger"
	"codeberg.org/mutker/thrud/internal/metrics"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	name    string
	util    uint32
	utilRet nvml.Return
	temp    uint32
	power   uint32
	fanRet  nvml.Return
}

func (d *fakeDevice) GetName() (string, nvml.Return) { return d.name, nvml.SUCCESS }

func (d *fakeDevice) GetUtilizationRates() (nvml.Utilization, nvml.Return) {
	return nvml.Utilization{Gpu: d.util}, d.utilRet
}

func (d *fakeDevice) GetTemperature(nvml.TemperatureSensors) (uint32, nvml.Return) {
	return d.temp, nvml.SUCCESS
}

func (d *fakeDevice) GetPowerUsage() (uint32, nvml.Return) { return d.power, nvml.SUCCESS }

func (d *fakeDevice) GetFanSpeed() (uint32, nvml.Return) { return 45, d.fanRet }

type fakeNVML struct {
	devices  []device
	shutdown bool
}

func (*fakeNVML) Initialize() error { return nil }

func (f *fakeNVML) Shutdown() error {
	f.shutdown = true
	return nil
}

func (f *fakeNVML) GetDeviceCount() (int, error) { return len(f.devices), nil }

func (f *fakeNVML) GetDevice(index int) (device, error) { return f.devices[index], nil }

func TestCollect(t *testing.T) {
	ctrl := &fakeNVML{devices: []device{
		&fakeDevice{name: "RTX 4090", util: 63, temp: 58, power: 215_500, fanRet: nvml.SUCCESS},
		&fakeDevice{name: "T4", util: 5, temp: 40, power: 30_000, fanRet: nvml.ERROR_NOT_SUPPORTED},
	}}
	s, err := newSampler(ctrl, logger.Nop())
	require.NoError(t, err)

	now := time.UnixMilli(1_700_000_000_000)
	s.now = func() time.Time { return now }

	samples, err := s.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, samples, 7)

	assert.Equal(t, metrics.MetricGPUUtilization, samples[0].Name)
	assert.Equal(t, metrics.Float(63), samples[0].Value)
	assert.Equal(t, "RTX 4090", samples[0].Tags.GPU.Name)
	assert.True(t, now.Equal(samples[0].Timestamp))
	assert.Equal(t, metrics.Int(58), samples[1].Value)
	assert.Equal(t, metrics.Float(215.5), samples[2].Value)
	assert.Equal(t, metrics.Int(45), samples[3].Value)

	// second device has no fan reading
	assert.Equal(t, 1, samples[4].Tags.GPU.Index)
	assert.Equal(t, metrics.MetricGPUPower, samples[6].Name)

	require.NoError(t, s.Close())
	assert.True(t, ctrl.shutdown)
}

func TestCollectFailsWithoutUtilization(t *testing.T) {
	ctrl := &fakeNVML{devices: []device{
		&fakeDevice{name: "A100", utilRet: nvml.ERROR_GPU_IS_LOST},
	}}
	s, err := newSampler(ctrl, logger.Nop())
	require.NoError(t, err)

	_, err = s.Collect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, ErrUtilizationReadFailed))
}

func TestNewSamplerWithoutDevices(t *testing.T) {
	ctrl := &fakeNVML{}
	_, err := newSampler(ctrl, logger.Nop())
	assert.True(t, errors.HasCode(err, ErrNoDevices))
	assert.True(t, ctrl.shutdown)
}
