// Package metrics exports Prometheus counters for the booking core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process-wide collectors.
type Metrics struct {
	registry *prometheus.Registry

	bookingsCreated  prometheus.Counter
	transitions      *prometheus.CounterVec
	dispatchOutcomes *prometheus.CounterVec
	sweepTicks       prometheus.Counter
	sweptBookings    prometheus.Counter
	notifierSends    *prometheus.CounterVec
	notifierRetries  *prometheus.CounterVec
	errorReports     prometheus.Counter
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{registry: registry}

	m.bookingsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "safarbot",
		Subsystem: "booking",
		Name:      "created_total",
		Help:      "Total number of bookings created",
	})
	m.transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "safarbot",
		Subsystem: "booking",
		Name:      "transitions_total",
		Help:      "Total number of applied booking status transitions",
	}, []string{"status"})
	m.dispatchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "safarbot",
		Subsystem: "dispatch",
		Name:      "outcomes_total",
		Help:      "Total number of dispatch attempts by outcome",
	}, []string{"outcome"})
	m.sweepTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "safarbot",
		Subsystem: "sweeper",
		Name:      "ticks_total",
		Help:      "Total number of sweeper iterations",
	})
	m.sweptBookings = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "safarbot",
		Subsystem: "sweeper",
		Name:      "expired_total",
		Help:      "Total number of bookings moved to timeout",
	})
	m.notifierSends = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "safarbot",
		Subsystem: "notifier",
		Name:      "sends_total",
		Help:      "Total number of outgoing transport calls",
	}, []string{"method", "status"})
	m.notifierRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "safarbot",
		Subsystem: "notifier",
		Name:      "retries_total",
		Help:      "Total number of transport retries by error kind",
	}, []string{"kind"})
	m.errorReports = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "safarbot",
		Subsystem: "errors",
		Name:      "reports_total",
		Help:      "Total number of error reports fanned out to admins",
	})

	registry.MustRegister(
		m.bookingsCreated,
		m.transitions,
		m.dispatchOutcomes,
		m.sweepTicks,
		m.sweptBookings,
		m.notifierSends,
		m.notifierRetries,
		m.errorReports,
	)
	return m
}

// Record methods are nil-safe so components can run without metrics in tests.

func (m *Metrics) BookingCreated() {
	if m != nil {
		m.bookingsCreated.Inc()
	}
}

func (m *Metrics) Transition(status string) {
	if m != nil {
		m.transitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) DispatchOutcome(outcome string) {
	if m != nil {
		m.dispatchOutcomes.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) SweepTick(expired int) {
	if m != nil {
		m.sweepTicks.Inc()
		m.sweptBookings.Add(float64(expired))
	}
}

func (m *Metrics) NotifierSend(method string, ok bool) {
	if m != nil {
		status := "success"
		if !ok {
			status = "error"
		}
		m.notifierSends.WithLabelValues(method, status).Inc()
	}
}

func (m *Metrics) NotifierRetry(kind string) {
	if m != nil {
		m.notifierRetries.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ErrorReported() {
	if m != nil {
		m.errorReports.Inc()
	}
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
