// Package metrics exposes detector counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run results used as the result label.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the firefinder collectors on a private registry so tests
// and multiple servers in one process do not collide.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	eventsTotal    prometheus.Counter
	samplesTotal   prometheus.Counter
	detectDuration prometheus.Histogram
	httpRequests   *prometheus.CounterVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firefinder_runs_total",
			Help: "Detector runs by result.",
		}, []string{"result"}),
		eventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firefinder_events_total",
			Help: "Fire events detected.",
		}),
		samplesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "firefinder_samples_total",
			Help: "Input samples processed.",
		}),
		detectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "firefinder_detect_duration_seconds",
			Help:    "Time spent preparing and detecting one batch.",
			Buckets: prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "firefinder_http_requests_total",
			Help: "HTTP requests by route and status.",
		}, []string{"route", "status"}),
	}
	m.registry.MustRegister(
		m.runsTotal,
		m.eventsTotal,
		m.samplesTotal,
		m.detectDuration,
		m.httpRequests,
	)
	// Export both results from the start.
	m.runsTotal.WithLabelValues(ResultOK)
	m.runsTotal.WithLabelValues(ResultError)
	return m
}

// ObserveRun records a successful run.
func (m *Metrics) ObserveRun(samples, events int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(ResultOK).Inc()
	m.samplesTotal.Add(float64(samples))
	m.eventsTotal.Add(float64(events))
	m.detectDuration.Observe(elapsed.Seconds())
}

// ObserveFailure records a run that returned an error.
func (m *Metrics) ObserveFailure(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(ResultError).Inc()
	m.detectDuration.Observe(elapsed.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests to next under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
