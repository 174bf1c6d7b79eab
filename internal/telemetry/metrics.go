package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ProxyCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminal_proxy_calls_total",
		Help: "Calls to the backend proxy by operation and outcome.",
	}, []string{"operation", "outcome"})

	ProxyCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "terminal_proxy_call_duration_seconds",
		Help:    "Backend proxy round trip time.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"operation"})

	Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "terminal_responses_classified_total",
		Help: "Terminal responses by classified kind.",
	}, []string{"kind"})

	LineTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_line_transitions_total",
		Help: "Applied payment line status transitions.",
	}, []string{"to"})

	PendingWaiters = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "terminal_pending_waiters",
		Help: "Payment lines with an outstanding confirmation wait.",
	})
)
