// Package metrics exposes Prometheus instruments for upstream fetches,
// dashboard searches and live sessions.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stockdash"

// Fetch outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeTransport = "transport"
	OutcomeMalformed = "malformed"
)

// Metrics holds the registered collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FetchTotal       *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	SearchesTotal    prometheus.Counter
	SupersededTotal  prometheus.Counter
	SearchesInFlight prometheus.Gauge
	Sessions         prometheus.Gauge
}

// New creates a Metrics bound to its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetch_total",
			Help:      "Stock data fetches by outcome.",
		}, []string{"outcome"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "fetch_duration_seconds",
			Help:      "Stock data fetch latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		SearchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "searches_total",
			Help:      "Searches submitted.",
		}),
		SupersededTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "searches_superseded_total",
			Help:      "Searches whose result was discarded because a newer search started.",
		}),
		SearchesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "searches_in_flight",
			Help:      "Searches currently waiting on the data service.",
		}),
		Sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dashboard",
			Name:      "sessions",
			Help:      "Live dashboard sessions.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.FetchTotal,
		m.FetchDuration,
		m.SearchesTotal,
		m.SupersededTotal,
		m.SearchesInFlight,
		m.Sessions,
	)
	return m
}

// ObserveFetch records one upstream fetch.
func (m *Metrics) ObserveFetch(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(outcome).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// SearchStarted marks a search as submitted and in flight.
func (m *Metrics) SearchStarted() {
	if m == nil {
		return
	}
	m.SearchesTotal.Inc()
	m.SearchesInFlight.Inc()
}

// SearchSettled marks an in-flight search as finished.
func (m *Metrics) SearchSettled() {
	if m == nil {
		return
	}
	m.SearchesInFlight.Dec()
}

// SearchSuperseded counts a search whose result was dropped.
func (m *Metrics) SearchSuperseded() {
	if m == nil {
		return
	}
	m.SupersededTotal.Inc()
}

// SetSessions reports the number of live sessions.
func (m *Metrics) SetSessions(n int) {
	if m == nil {
		return
	}
	m.Sessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
