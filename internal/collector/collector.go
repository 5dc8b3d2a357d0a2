// Package collector runs one sampling pass: it reads every counter bridge,
// stores the round, refreshes the chart cache and applies retention.
package collector

import (
	"context"
	"time"

	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/logger"
	"codeberg.org/mutker/thrud/internal/metrics"
	"codeberg.org/mutker/thrud/internal/rate"
	"codeberg.org/mutker/thrud/internal/telemetry"
)

// Source is a counter bridge producing point-in-time samples.
type Source interface {
	Name() string
	Collect(ctx context.Context) ([]metrics.Sample, error)
}

// Store is the storage the collector needs.
type Store interface {
	metrics.SampleWriter
	metrics.SampleReader
	metrics.ChartStore
	Prune(ctx context.Context, before time.Time) (int64, error)
	Stats(ctx context.Context) (metrics.Stats, error)
}

type Service struct {
	cfg       Config
	sources   []Source
	store     Store
	charts    *ChartGenerator
	rates     *rate.Service
	telemetry telemetry.Recorder
	logger    logger.Logger
	now       func() time.Time
}

func NewService(cfg Config, store Store, sources []Source, rec telemetry.Recorder, log logger.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Service{
		cfg:       cfg,
		sources:   sources,
		store:     store,
		charts:    NewChartGenerator(store, store, cfg.ChartPoints, log),
		rates:     rate.NewService(store, log),
		telemetry: rec,
		logger:    log,
		now:       time.Now,
	}, nil
}

// CollectAll gathers samples from every source. A failing source is logged
// and skipped so the others still produce a round.
func (s *Service) CollectAll(ctx context.Context) []metrics.Sample {
	var all []metrics.Sample
	for _, src := range s.sources {
		samples, err := src.Collect(ctx)
		if err != nil {
			s.telemetry.SourceFailed(src.Name())
			s.logger.Warn().
				Err(err).
				Str("source", src.Name()).
				Msg("Source failed, continuing with the others")
			continue
		}
		all = append(all, samples...)
	}
	return all
}

// RunOnce performs one full pass. Only collecting and storing the round
// can fail it; chart, retention and gauge errors are logged.
func (s *Service) RunOnce(ctx context.Context) (metrics.CollectionRound, error) {
	errFactory := errors.New()
	start := s.now()

	samples := s.CollectAll(ctx)
	if len(samples) == 0 {
		return metrics.CollectionRound{}, errFactory.New(ErrNoSamples)
	}

	round, err := s.store.StoreRound(ctx, samples)
	if err != nil {
		return metrics.CollectionRound{}, errFactory.Wrap(ErrStoreRound, err)
	}
	s.telemetry.RoundStored(round.SampleCount, s.now().Sub(start))

	s.logger.Info().
		Str("round_id", round.ID).
		Int("samples", round.SampleCount).
		Msg("Collected round")

	if n, err := s.charts.Generate(ctx, round.ID); err != nil {
		s.logger.Warn().Err(err).Str("round_id", round.ID).Msg("Chart generation failed")
	} else if n > 0 {
		s.telemetry.ChartsStored(n)
	}

	if s.cfg.Retention > 0 {
		pruned, err := s.store.Prune(ctx, s.now().Add(-s.cfg.Retention))
		if err != nil {
			s.logger.Warn().Err(err).Msg("Retention pruning failed")
		} else {
			s.telemetry.RoundsPruned(pruned)
		}
	}

	s.updateGauges(ctx)

	return round, nil
}

func (s *Service) updateGauges(ctx context.Context) {
	if stats, err := s.store.Stats(ctx); err == nil {
		s.telemetry.StoreSize(stats.DatabaseBytes)
	} else {
		s.logger.Debug().Err(err).Msg("Failed to read store stats")
	}

	res, err := s.rates.Latest(ctx, s.cfg.Window)
	if err != nil {
		s.logger.Debug().Err(err).Msg("Failed to compute rates")
		return
	}
	for _, agg := range res.CoreTypes {
		s.telemetry.Utilization(agg.Key(), agg.Utilization)
	}
	for _, issue := range res.Issues {
		s.logger.Debug().
			Str("code", string(issue.Code)).
			Str("metric", issue.Metric).
			Int("core_id", issue.CoreID).
			Msg(issue.Reason)
	}
}

// Run collects every interval until ctx is cancelled. A failed pass is
// logged and the loop keeps going.
func (s *Service) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("Collection round failed")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
