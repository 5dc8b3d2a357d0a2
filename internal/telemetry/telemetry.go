// Package telemetry exports collector activity as Prometheus metrics.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"codeberg.org/mutker/thrud/internal/errors"
	"codeberg.org/mutker/thrud/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

type service struct {
	cfg      Config
	logger   logger.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
	failures *prometheus.CounterVec
	util     *prometheus.GaugeVec

	mu     sync.Mutex
	server *http.Server
}

// No-op implementation
type noopRecorder struct{}

// NewService returns a Prometheus-backed Recorder, or a no-op one when
// telemetry is disabled.
func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !cfg.Enabled {
		log.Debug().Msg("Telemetry disabled, using no-op recorder")
		return &noopRecorder{}, nil
	}

	rounds := prometheus.NewCounter(prometheus.CounterOpts{
		Name: RoundsTotal,
		Help: "Collection rounds committed to the sample store.",
	})
	samples := prometheus.NewCounter(prometheus.CounterOpts{
		Name: SamplesTotal,
		Help: "Samples committed to the sample store.",
	})
	charts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: ChartsTotal,
		Help: "Charts written to the chart cache.",
	})
	pruned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: PrunedTotal,
		Help: "Collection rounds removed by retention.",
	})
	storeBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: StoreBytes,
		Help: "Size of the sample store database.",
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    RoundDurationSeconds,
		Help:    "Time spent collecting and storing one round.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: SourceFailuresTotal,
		Help: "Counter bridge failures by source.",
	}, []string{"source"})
	util := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: UtilizationPercent,
		Help: "Latest utilization by class.",
	}, []string{"class"})

	reg := cfg.registerer()
	for _, c := range []prometheus.Collector{rounds, samples, charts, pruned, storeBytes, duration, failures, util} {
		if err := reg.Register(c); err != nil {
			return nil, errFactory.Wrap(ErrRegisterFailed, err)
		}
	}

	log.Debug().
		Str("addr", cfg.Addr).
		Msg("Telemetry service initialized")

	return &service{
		cfg:    cfg,
		logger: log,
		counters: map[string]prometheus.Counter{
			RoundsTotal:  rounds,
			SamplesTotal: samples,
			ChartsTotal:  charts,
			PrunedTotal:  pruned,
		},
		gauges: map[string]prometheus.Gauge{
			StoreBytes: storeBytes,
		},
		histos: map[string]prometheus.Observer{
			RoundDurationSeconds: duration,
		},
		failures: failures,
		util:     util,
	}, nil
}

func (s *service) add(name string, v float64) {
	if c, ok := s.counters[name]; ok {
		c.Add(v)
	}
}

func (s *service) RoundStored(samples int, took time.Duration) {
	s.add(RoundsTotal, 1)
	s.add(SamplesTotal, float64(samples))
	if h, ok := s.histos[RoundDurationSeconds]; ok {
		h.Observe(took.Seconds())
	}
}

func (s *service) SourceFailed(source string) {
	s.failures.WithLabelValues(source).Inc()
}

func (s *service) ChartsStored(count int) {
	s.add(ChartsTotal, float64(count))
}

func (s *service) RoundsPruned(count int64) {
	s.add(PrunedTotal, float64(count))
}

func (s *service) StoreSize(bytes int64) {
	if g, ok := s.gauges[StoreBytes]; ok {
		g.Set(float64(bytes))
	}
}

func (s *service) Utilization(class string, percent float64) {
	s.util.WithLabelValues(class).Set(percent)
}

// Serve exposes /metrics and /healthz until ctx is cancelled.
func (s *service) Serve(ctx context.Context) error {
	errFactory := errors.New()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.cfg.gatherer(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		if err := s.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to stop telemetry server")
		}
	}()

	s.logger.Info().Str("addr", s.cfg.Addr).Msg("Serving telemetry")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errFactory.Wrap(ErrServeFailed, err)
	}
	return nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}
	return nil
}

// No-op implementation
func (*noopRecorder) RoundStored(int, time.Duration) {}
func (*noopRecorder) SourceFailed(string)            {}
func (*noopRecorder) ChartsStored(int)               {}
func (*noopRecorder) RoundsPruned(int64)             {}
func (*noopRecorder) StoreSize(int64)                {}
func (*noopRecorder) Utilization(string, float64)    {}

func (*noopRecorder) Serve(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (*noopRecorder) Close() error {
	return nil
}
