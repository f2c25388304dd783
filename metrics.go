package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	requests       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	failures       *prometheus.CounterVec
	incidents      prometheus.Counter
	reportFailures prometheus.Counter
	rateLimited    prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_requests_total",
				Help: "Requests by method and status class",
			},
			[]string{"method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_request_duration_seconds",
				Help:    "Request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_failures_total",
				Help: "Resolved failures by classification key and status",
			},
			[]string{"key", "status", "local"},
		),
		incidents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_incidents_reported_total",
			Help: "Incidents reported for unclassified failures",
		}),
		reportFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_incident_report_failures_total",
			Help: "Incident reports that failed or panicked",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_ratelimit_rejected_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.failures, m.incidents, m.reportFailures, m.rateLimited)
	return m
}

// Middleware records request count and duration.
func (m *Metrics) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			m.requests.WithLabelValues(r.Method, strconv.Itoa(rec.status/100)+"xx").Inc()
			m.duration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

func (m *Metrics) observeFailure(res Resolution) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(res.Key, strconv.Itoa(res.Payload.Status), strconv.FormatBool(res.Local)).Inc()
}

func (m *Metrics) observeIncident() {
	if m != nil {
		m.incidents.Inc()
	}
}

func (m *Metrics) observeReportFailure() {
	if m != nil {
		m.reportFailures.Inc()
	}
}

func (m *Metrics) observeRateLimited() {
	if m != nil {
		m.rateLimited.Inc()
	}
}
