// Package metrics exposes Prometheus instruments for bed transitions,
// turnover durations, queue depth and report generation. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ehr/bedflow/internal/platform/apperr"
)

const namespace = "bedflow"

type Metrics struct {
	registry *prometheus.Registry

	Transitions     *prometheus.CounterVec
	TurnoverMinutes *prometheus.HistogramVec
	QueueDepth      *prometheus.GaugeVec
	QueueMatches    *prometheus.CounterVec
	Reports         *prometheus.CounterVec
	DegradedPaths   *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New creates a registry with the process and Go collectors plus the
// application instruments.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bed_transitions_total",
			Help:      "Bed state machine operations by outcome",
		}, []string{"operation", "outcome"}),
		TurnoverMinutes: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turnover_duration_minutes",
			Help:      "Actual cleaning duration of completed turnovers",
			Buckets:   []float64{10, 20, 30, 45, 60, 90, 120, 180},
		}, []string{"bed_class"}),
		QueueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Patients waiting per bed class",
		}, []string{"bed_class"}),
		QueueMatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_matches_total",
			Help:      "Queue-to-bed assignment attempts by outcome",
		}, []string{"outcome"}),
		Reports: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discharge_reports_total",
			Help:      "Discharge reports generated by outcome",
		}, []string{"outcome"}),
		DegradedPaths: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciliation_degraded_total",
			Help:      "Reconciliation fallbacks taken while building reports",
		}, []string{"path"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func outcome(err error) string {
	if err == nil {
		return "success"
	}
	return string(apperr.KindOf(err))
}

// ObserveTransition counts one state machine operation.
func (m *Metrics) ObserveTransition(op string, err error) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(op, outcome(err)).Inc()
}

func (m *Metrics) ObserveTurnover(bedClass string, minutes int) {
	if m == nil {
		return
	}
	m.TurnoverMinutes.WithLabelValues(bedClass).Observe(float64(minutes))
}

func (m *Metrics) SetQueueDepth(bedClass string, depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(bedClass).Set(float64(depth))
}

func (m *Metrics) ObserveMatch(err error) {
	if m == nil {
		return
	}
	m.QueueMatches.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) ObserveReport(err error) {
	if m == nil {
		return
	}
	m.Reports.WithLabelValues(outcome(err)).Inc()
}

func (m *Metrics) ObserveDegraded(path string) {
	if m == nil {
		return
	}
	m.DegradedPaths.WithLabelValues(path).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency keyed by the matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
