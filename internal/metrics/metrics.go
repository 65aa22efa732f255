// Package metrics exposes Prometheus counters for decode runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hpungsan/uartscope/internal/uart"
)

// Run results.
const (
	ResultOK        = "ok"
	ResultCancelled = "cancelled"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
)

// Metrics holds the collectors of one registry. Each instance owns its
// registry so tests and embedded servers never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal    *prometheus.CounterVec // decode runs by result
	bytesTotal   *prometheus.CounterVec // decoded data symbols by line
	errorsTotal  *prometheus.CounterVec // per-symbol anomalies by kind
	duration     prometheus.Histogram   // wall time of successful runs
	lastBaudRate prometheus.Gauge       // estimated baud of the last valid run
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uartscope_decode_runs_total",
				Help: "Decode runs by result (ok, cancelled, rejected, failed)",
			},
			[]string{"result"},
		),
		bytesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uartscope_decoded_bytes_total",
				Help: "Decoded data symbols by line (rx, tx)",
			},
			[]string{"line"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uartscope_decode_errors_total",
				Help: "Symbols carrying a decode anomaly, by error kind",
			},
			[]string{"kind"},
		),
		duration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "uartscope_decode_duration_seconds",
				Help:    "Wall time of successful decode runs",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
		lastBaudRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "uartscope_last_baud_rate",
				Help: "Estimated baud rate of the most recent run with a valid estimate",
			},
		),
	}
}

// ObserveRun records a completed decode.
func (m *Metrics) ObserveRun(log *uart.DecodeLog, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(ResultOK).Inc()
	m.duration.Observe(elapsed.Seconds())

	for _, s := range log.Symbols() {
		if s.IsData() {
			m.bytesTotal.WithLabelValues(s.Scope.String()).Inc()
		}
		if s.HasError() {
			m.errorsTotal.WithLabelValues(string(s.Error)).Inc()
		}
	}
	if baud := log.Baud(); baud.Valid {
		m.lastBaudRate.Set(baud.ExactBaudRate)
	}
}

// ObserveFailure records a decode that produced no log.
func (m *Metrics) ObserveFailure(result string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
