package resilience

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "championcart"
	metricsSubsystem = "outbound"
)

// Outbound collectors register with the default registry on import.
var (
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "breaker_state",
		Help:      "Breaker state per target: 0 closed, 1 open, 2 half-open.",
	}, []string{"target"})

	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "breaker_transition_total",
		Help:      "Breaker state transitions per target.",
	}, []string{"target", "from", "to"})

	BreakerOpenedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "breaker_open_total",
		Help:      "Times a breaker tripped open.",
	}, []string{"target"})

	OutboundAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "attempts_total",
		Help:      "Outbound HTTP attempts by target and result (ok, status, error, rejected).",
	}, []string{"target", "result"})

	OutboundDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "attempt_duration_seconds",
		Help:      "Latency of single outbound HTTP attempts.",
		Buckets:   prometheus.ExponentialBuckets(0.025, 2, 10),
	}, []string{"target"})
)
