package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/colmeta/copilot-dispatch/pkg/health"
	"github.com/colmeta/copilot-dispatch/pkg/providers"
)

// providerTotals accumulates per-provider usage over the process lifetime.
// The rolling window in the health tracker is an approximation; these
// totals are exact counters.
type providerTotals struct {
	calls      int64
	successes  int64
	latencySum time.Duration
	costSum    float64
}

// Aggregator consumes attempt results from every dispatch. It updates the
// relevant provider's health tracker (including circuit transitions) and
// exposes point-in-time usage reporting. State is in-memory only; pairing
// with a persistent store is the caller's choice (see the audit package).
type Aggregator struct {
	trackers   *health.Set
	registry   *prometheus.Registry
	collectors *collectors

	mu     sync.Mutex
	totals map[string]*providerTotals
}

// NewAggregator creates an aggregator over the given tracker set. A nil
// registry creates a private one, which tests use to avoid global collector
// collisions.
func NewAggregator(trackers *health.Set, namespace string, registry *prometheus.Registry) *Aggregator {
	if namespace == "" {
		namespace = "dispatch"
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &Aggregator{
		trackers:   trackers,
		registry:   registry,
		collectors: newCollectors(namespace, registry),
		totals:     make(map[string]*providerTotals),
	}
}

// RecordAttempt folds one attempt result into the provider's health tracker
// and the usage counters. The dispatcher calls this after every attempt,
// before deciding its next step, so a just-discovered failure immediately
// affects eligibility.
//
// Both transient and permanent failures count toward the circuit breaker's
// consecutive-failure threshold; permanent failures are still distinguished
// in the outcome metric so operators can alert on them separately.
func (a *Aggregator) RecordAttempt(result *providers.AttemptResult) {
	if result == nil {
		return
	}

	success := result.Outcome == providers.OutcomeSuccess

	tracker := a.trackers.Get(result.ProviderID)
	if tracker != nil {
		tracker.Record(success, result.Latency)
		a.collectors.circuit.WithLabelValues(result.ProviderID).
			Set(circuitGaugeValue(tracker.State()))
	}

	a.collectors.attempts.WithLabelValues(result.ProviderID, string(result.Outcome)).Inc()
	a.collectors.latency.WithLabelValues(result.ProviderID).Observe(result.Latency.Seconds())
	if result.EstimatedCost > 0 {
		a.collectors.cost.WithLabelValues(result.ProviderID).Add(result.EstimatedCost)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	totals, ok := a.totals[result.ProviderID]
	if !ok {
		totals = &providerTotals{}
		a.totals[result.ProviderID] = totals
	}
	totals.calls++
	if success {
		totals.successes++
	}
	totals.latencySum += result.Latency
	totals.costSum += result.EstimatedCost
}

// ProviderReport is the point-in-time usage view of one provider.
type ProviderReport struct {
	ProviderID          string              `json:"provider_id"`
	CircuitState        health.CircuitState `json:"circuit_state"`
	Calls               int64               `json:"calls"`
	Successes           int64               `json:"successes"`
	SuccessRate         float64             `json:"success_rate"`
	AvgLatency          time.Duration       `json:"avg_latency"`
	WindowFailureRate   float64             `json:"window_failure_rate"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	EstimatedCost       float64             `json:"estimated_cost"`
}

// Report is the global usage summary across providers.
type Report struct {
	GeneratedAt        time.Time        `json:"generated_at"`
	Providers          []ProviderReport `json:"providers"`
	TotalCalls         int64            `json:"total_calls"`
	TotalSuccesses     int64            `json:"total_successes"`
	TotalEstimatedCost float64          `json:"total_estimated_cost"`
}

// Snapshot returns the point-in-time usage/cost report across all
// providers. It is a reporting surface only: the dispatcher reads health
// trackers directly and never consults this API.
func (a *Aggregator) Snapshot() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := &Report{
		GeneratedAt: time.Now(),
		Providers:   make([]ProviderReport, 0, len(a.trackers.All())),
	}

	for id, tracker := range a.trackers.All() {
		stats := tracker.Snapshot()

		pr := ProviderReport{
			ProviderID:          id,
			CircuitState:        stats.State,
			WindowFailureRate:   stats.FailureRate,
			ConsecutiveFailures: stats.ConsecutiveFailures,
		}

		if totals, ok := a.totals[id]; ok {
			pr.Calls = totals.calls
			pr.Successes = totals.successes
			pr.EstimatedCost = totals.costSum
			if totals.calls > 0 {
				pr.SuccessRate = float64(totals.successes) / float64(totals.calls)
				pr.AvgLatency = totals.latencySum / time.Duration(totals.calls)
			}

			report.TotalCalls += totals.calls
			report.TotalSuccesses += totals.successes
			report.TotalEstimatedCost += totals.costSum
		}

		report.Providers = append(report.Providers, pr)
	}

	// Stable order for consumers and tests.
	sort.Slice(report.Providers, func(i, j int) bool {
		return report.Providers[i].ProviderID < report.Providers[j].ProviderID
	})

	return report
}
