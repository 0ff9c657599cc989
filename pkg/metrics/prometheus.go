package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/colmeta/copilot-dispatch/pkg/health"
)

// collectors bundles the Prometheus instruments maintained by the
// aggregator.
//
// Metrics:
//   - <ns>_attempts_total: attempt count by provider and outcome
//   - <ns>_attempt_latency_seconds: attempt latency by provider
//   - <ns>_circuit_state: current circuit state (0=closed, 1=half_open, 2=open)
//   - <ns>_estimated_cost_usd_total: cumulative estimated spend by provider
type collectors struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	circuit  *prometheus.GaugeVec
	cost     *prometheus.CounterVec
}

// newCollectors creates and registers the aggregator's instruments.
func newCollectors(namespace string, registry *prometheus.Registry) *collectors {
	c := &collectors{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Total number of provider attempts by outcome",
			},
			[]string{"provider", "outcome"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "attempt_latency_seconds",
				Help:      "Provider attempt latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),

		circuit: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"provider"},
		),

		cost: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "estimated_cost_usd_total",
				Help:      "Cumulative estimated provider spend in USD",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(c.attempts, c.latency, c.circuit, c.cost)
	return c
}

// circuitGaugeValue maps a circuit state to its gauge encoding.
func circuitGaugeValue(state health.CircuitState) float64 {
	switch state {
	case health.StateHalfOpen:
		return 1
	case health.StateOpen:
		return 2
	default:
		return 0
	}
}

// Handler returns an HTTP handler exposing the aggregator's registry in the
// Prometheus exposition format, typically mounted at /metrics.
func (a *Aggregator) Handler() http.Handler {
	return promhttp.HandlerFor(
		a.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}
