package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"codeberg.org/mutker/thrud/internal/collector"
	"codeberg.org/mutker/thrud/internal/config"
	"codeberg.org/mutker/thrud/internal/cpu"
	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/gpu"
	"codeberg.org/mutker/thrud/internal/logger"
	"codeberg.org/mutker/thrud/internal/metrics"
	"codeberg.org/mutker/thrud/internal/pid"
	"codeberg.org/mutker/thrud/internal/telemetry"
	"github.com/spf13/pflag"
)

type app struct {
	cfg       *config.Config
	store     *metrics.Repository
	sources   []collector.Source
	closers   []func() error
	telemetry telemetry.Recorder
	collector *collector.Service
	logger    logger.Logger
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	logger.Init(level, logger.IsService())
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(cfg.PIDFile); err != nil {
		logger.Fatal().Err(err).Str("pid_file", cfg.PIDFile).Msg("Failed to write PID file")
	}

	a, err := initApp(cfg)
	if err != nil {
		_ = pid.Remove(cfg.PIDFile)
		logger.Fatal().Err(err).Msg("Failed to initialize")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := a.run(ctx); err != nil {
		logger.Error().Err(err).Msg("Error in main loop")
	}
	a.cleanup()
}

func initApp(cfg *config.Config) (*app, error) {
	errFactory := errors.New()
	log := logger.Default()

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	storeCfg := metrics.DefaultConfig(cfg.Database)
	storeCfg.Driver = cfg.Driver
	store, err := metrics.NewRepository(storeCfg, log.With("metrics"))
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	a := &app{cfg: cfg, store: store, logger: log}
	a.closers = append(a.closers, store.Close)

	if cfg.CPU {
		sampler, err := cpu.NewSampler(cpu.DefaultConfig(), log.With("cpu"))
		if err != nil {
			log.Warn().Err(err).Msg("CPU sampling unavailable")
		} else {
			a.sources = append(a.sources, sampler)
		}
	}
	if cfg.GPU {
		sampler, err := gpu.NewSampler(log.With("gpu"))
		if err != nil {
			log.Warn().Err(err).Msg("GPU sampling unavailable")
		} else {
			a.sources = append(a.sources, sampler)
			a.closers = append(a.closers, sampler.Close)
		}
	}
	if len(a.sources) == 0 {
		a.closeAll()
		return nil, errFactory.WithMessage(errors.ErrInitApp, "no counter source available")
	}

	telCfg := telemetry.DefaultConfig()
	telCfg.Enabled = cfg.IsTelemetryEnabled()
	telCfg.Addr = cfg.MetricsAddr
	a.telemetry, err = telemetry.NewService(telCfg, log.With("telemetry"))
	if err != nil {
		a.closeAll()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}
	a.closers = append(a.closers, a.telemetry.Close)

	colCfg := collector.DefaultConfig()
	colCfg.ChartPoints = cfg.ChartPoints
	colCfg.Window = cfg.Window
	colCfg.Retention = cfg.Retention
	a.collector, err = collector.NewService(colCfg, store, a.sources, a.telemetry, log.With("collector"))
	if err != nil {
		a.closeAll()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	return a, nil
}

func (a *app) run(ctx context.Context) error {
	go func() {
		if err := a.telemetry.Serve(ctx); err != nil {
			a.logger.Error().Err(err).Msg("Telemetry endpoint stopped")
		}
	}()

	a.logger.Info().
		Str("database", a.cfg.Database).
		Dur("interval", a.cfg.Interval).
		Int("sources", len(a.sources)).
		Msg("Collector started")

	if err := a.collector.Run(ctx, a.cfg.Interval); err != nil {
		return errors.New().Wrap(errors.ErrMainLoop, err)
	}
	return nil
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func (a *app) cleanup() {
	a.closeAll()
	if err := pid.Remove(a.cfg.PIDFile); err != nil {
		logger.Error().Err(err).Msg("Failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}

// closeAll releases resources in reverse order of acquisition.
func (a *app) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Error().Err(err).Msg("Failed to release resource")
		}
	}
	a.closers = nil
}
