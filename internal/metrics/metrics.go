package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "credit_service"

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	creditsCreated   prometheus.Counter
	rejections       *prometheus.CounterVec
	payments         *prometheus.CounterVec
	conflicts        *prometheus.CounterVec
	sweepTransitions prometheus.Counter
	sweepFailures    prometheus.Counter
	sweepDuration    prometheus.Histogram
	httpRequests     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		creditsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credits_created_total",
			Help:      "Credits created.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Operations rejected by business rules, by reason code.",
		}, []string{"operation", "reason"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Payments applied, by resulting status.",
		}, []string{"status"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_conflicts_total",
			Help:      "Optimistic concurrency conflicts and duplicate keys retried.",
		}, []string{"operation"}),
		sweepTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_transitions_total",
			Help:      "Credits moved to OVERDUE by the sweeper.",
		}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Per-credit failures during a sweep.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of overdue sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.creditsCreated,
		m.rejections,
		m.payments,
		m.conflicts,
		m.sweepTransitions,
		m.sweepFailures,
		m.sweepDuration,
		m.httpRequests,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// CreditCreated counts a new credit.
func (m *Metrics) CreditCreated() {
	if m == nil {
		return
	}
	m.creditsCreated.Inc()
}

// Rejected counts an operation refused by a business rule.
func (m *Metrics) Rejected(operation, reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(operation, reason).Inc()
}

// PaymentApplied counts a payment by the status it left the credit in.
func (m *Metrics) PaymentApplied(status string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(status).Inc()
}

// Conflict counts a version conflict or key collision that was retried.
func (m *Metrics) Conflict(operation string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(operation).Inc()
}

// SweepFinished records the outcome and duration of one overdue sweep.
func (m *Metrics) SweepFinished(transitioned, failed int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepTransitions.Add(float64(transitioned))
	m.sweepFailures.Add(float64(failed))
	m.sweepDuration.Observe(elapsed.Seconds())
}

// HTTPRequest counts a served request by method, route template and status.
func (m *Metrics) HTTPRequest(method, route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
}
