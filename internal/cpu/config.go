package cpu

import (
	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/metrics"
)

const (
	defaultProcPath = "/proc"
	defaultSysPath  = "/sys"
)

type Config struct {
	ProcPath string
	SysPath  string
	// HomogeneousType classifies cores on CPUs that do not expose hybrid
	// core lists.
	HomogeneousType metrics.CoreType
}

func DefaultConfig() Config {
	return Config{
		ProcPath:        defaultProcPath,
		SysPath:         defaultSysPath,
		HomogeneousType: metrics.CoreTypePerformance,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.ProcPath == "" || c.SysPath == "" {
		return errFactory.WithData(ErrInvalidConfig, struct {
			ProcPath string
			SysPath  string
		}{
			ProcPath: c.ProcPath,
			SysPath:  c.SysPath,
		})
	}
	return nil
}
