// Package metrics exposes query run and engine bootstrap metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/leapstack-labs/querypad/internal/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal         *prometheus.CounterVec
	RunDuration       *prometheus.HistogramVec
	ResultRows        *prometheus.HistogramVec
	BootstrapTotal    *prometheus.CounterVec
	BootstrapDuration *prometheus.GaugeVec
}

// New registers the querypad collectors plus the Go runtime collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querypad_runs_total",
				Help: "Total number of query runs",
			},
			[]string{"mode", "status"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "querypad_run_duration_seconds",
				Help:    "Query execution time in seconds, excluding engine bootstrap",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 9),
			},
			[]string{"mode"},
		),
		ResultRows: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "querypad_result_rows",
				Help:    "Rows returned by tabular results",
				Buckets: []float64{0, 1, 10, 100, 1000, 10000},
			},
			[]string{"mode"},
		),
		BootstrapTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querypad_engine_bootstrap_total",
				Help: "Engine bootstraps by engine and outcome",
			},
			[]string{"engine", "status"},
		),
		BootstrapDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "querypad_engine_bootstrap_seconds",
				Help: "Duration of the last bootstrap per engine",
			},
			[]string{"engine"},
		),
	}
}

// ObserveRun records a completed run.
func (m *Metrics) ObserveRun(mode query.Mode, res *query.Result) {
	if res == nil {
		return
	}
	m.RunsTotal.WithLabelValues(string(mode), status(res.Success)).Inc()
	m.RunDuration.WithLabelValues(string(mode)).Observe(res.Elapsed().Seconds())
	if res.IsTabular() {
		m.ResultRows.WithLabelValues(string(mode)).Observe(float64(res.RowCount()))
	}
}

// ObserveBootstrap records an engine bootstrap. Its signature matches
// engine.BootstrapObserver.
func (m *Metrics) ObserveBootstrap(name string, elapsed time.Duration, err error) {
	m.BootstrapTotal.WithLabelValues(name, status(err == nil)).Inc()
	m.BootstrapDuration.WithLabelValues(name).Set(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
