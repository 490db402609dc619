// Package metrics exposes controller counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	Migrations        *prometheus.CounterVec
	MigrationDuration prometheus.Histogram
	Restores          *prometheus.CounterVec
	Rollbacks         *prometheus.CounterVec
	Tracked           prometheus.Gauge
	OrphansRemoved    prometheus.Counter
	DroppedEvents     prometheus.Counter
}

// New creates collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Migrations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxdesk_migrations_total",
				Help: "Window migrations by result",
			},
			[]string{"result"},
		),
		MigrationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "maxdesk_migration_duration_seconds",
				Help:    "Time spent migrating a window, including the switch settle delay",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
			},
		),
		Restores: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxdesk_restores_total",
				Help: "Window restores by reason",
			},
			[]string{"reason"},
		),
		Rollbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "maxdesk_rollbacks_total",
				Help: "Migrations rolled back, by failing step",
			},
			[]string{"step"},
		),
		Tracked: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "maxdesk_tracked_windows",
				Help: "Windows currently on temporary desktops",
			},
		),
		OrphansRemoved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maxdesk_orphans_removed_total",
				Help: "Orphaned temporary desktops removed by crash recovery",
			},
		),
		DroppedEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "maxdesk_dropped_events_total",
				Help: "Window events dropped because the control queue was full",
			},
		),
	}
}

// WatchHandles publishes fn as the number of desktop handles acquired and
// not yet released. Call it at most once.
func (m *Metrics) WatchHandles(fn func() int64) {
	if m == nil {
		return
	}
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "maxdesk_live_desktop_handles",
			Help: "Desktop handles held by the controller",
		},
		func() float64 { return float64(fn()) },
	)
}

func (m *Metrics) Migration(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Migrations.WithLabelValues(result).Inc()
	m.MigrationDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) Restore(reason string) {
	if m == nil {
		return
	}
	m.Restores.WithLabelValues(reason).Inc()
}

func (m *Metrics) Rollback(step string) {
	if m == nil {
		return
	}
	m.Rollbacks.WithLabelValues(step).Inc()
}

func (m *Metrics) SetTracked(n int) {
	if m == nil {
		return
	}
	m.Tracked.Set(float64(n))
}

func (m *Metrics) OrphanRemoved() {
	if m == nil {
		return
	}
	m.OrphansRemoved.Inc()
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.DroppedEvents.Inc()
}

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
