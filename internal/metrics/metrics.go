// Package metrics exposes pipeline counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	Cycles      *prometheus.CounterVec
	Headlines   *prometheus.CounterVec
	Decisions   *prometheus.CounterVec
	OracleCalls *prometheus.CounterVec
	Expired     prometheus.Counter
	QueueSize   prometheus.Gauge
	CycleTime   prometheus.Histogram
}

// New registers every collector on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corroborate",
			Name:      "cycles_total",
			Help:      "Processing cycles by result.",
		}, []string{"result"}),
		Headlines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corroborate",
			Name:      "headlines_total",
			Help:      "Scraped headlines by disposition.",
		}, []string{"disposition"}),
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corroborate",
			Name:      "decisions_total",
			Help:      "Pipeline decisions by outcome.",
		}, []string{"outcome"}),
		OracleCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "corroborate",
			Name:      "oracle_calls_total",
			Help:      "Oracle calls by kind and result.",
		}, []string{"kind", "result"}),
		Expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corroborate",
			Name:      "queue_expired_total",
			Help:      "Queued facts that expired without corroboration.",
		}),
		QueueSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "corroborate",
			Name:      "queue_size",
			Help:      "Facts waiting for a second source.",
		}),
		CycleTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "corroborate",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a processing cycle.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
	}

	m.registry.MustRegister(
		m.Cycles, m.Headlines, m.Decisions, m.OracleCalls,
		m.Expired, m.QueueSize, m.CycleTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// OracleCall counts one oracle call
func (m *Metrics) OracleCall(kind, result string) {
	m.OracleCalls.WithLabelValues(kind, result).Inc()
}

// Registry returns the private registry, for tests and custom exporters
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
