package rate

import (
	"context"
	"time"

	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/logger"
	"codeberg.org/mutker/thrud/internal/metrics"
)

// Service answers rate queries from the sample store.
type Service struct {
	store metrics.SampleReader
	log   logger.Logger
	now   func() time.Time
}

func NewService(store metrics.SampleReader, log logger.Logger) *Service {
	return &Service{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

// Latest computes rates over the trailing window ending now. A zero
// window means DefaultWindow. Storage failures are returned wrapped with
// ErrReadFailed so they stay distinguishable from an empty window.
func (s *Service) Latest(ctx context.Context, window time.Duration) (Result, error) {
	errFactory := errors.New()

	if window < 0 {
		return Result{}, errFactory.WithData(ErrInvalidWindow, struct {
			Window string
		}{
			Window: window.String(),
		})
	}
	if window == 0 {
		window = DefaultWindow
	}

	now := s.now()
	stored, err := s.store.Samples(ctx, metrics.CPUTickMetrics, now.Add(-window))
	if err != nil {
		return Result{}, errFactory.Wrap(ErrReadFailed, err).WithData(struct {
			Window string
		}{
			Window: window.String(),
		})
	}

	samples := make([]metrics.Sample, len(stored))
	for i := range stored {
		samples[i] = stored[i].Sample
	}

	res := Compute(samples, window, now)
	s.log.Debug().
		Dur("window", window).
		Int("samples", len(samples)).
		Int("rates", len(res.Rates)).
		Int("issues", len(res.Issues)).
		Msg("Computed rates")

	return res, nil
}

// History returns the utilization series spanned by the last rounds
// collection rounds, oldest first.
func (s *Service) History(ctx context.Context, rounds int) ([]RoundUtilization, error) {
	errFactory := errors.New()

	recent, err := s.store.RecentRounds(ctx, rounds)
	if err != nil {
		return nil, errFactory.Wrap(ErrReadFailed, err)
	}
	if len(recent) < 2 {
		return nil, nil
	}

	ids := make([]string, len(recent))
	for i, r := range recent {
		ids[i] = r.ID
	}
	names := append([]string{metrics.MetricGPUUtilization}, metrics.CPUTickMetrics...)
	stored, err := s.store.SamplesForRounds(ctx, ids, names)
	if err != nil {
		return nil, errFactory.Wrap(ErrReadFailed, err)
	}

	return History(recent, stored), nil
}
