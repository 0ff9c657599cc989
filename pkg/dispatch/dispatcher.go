package dispatch

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/colmeta/copilot-dispatch/pkg/health"
	"github.com/colmeta/copilot-dispatch/pkg/providers"
)

// Config contains dispatch tunables.
type Config struct {
	// MaxAttempts is the hard cap on providers tried per dispatch.
	// The effective limit is min(MaxAttempts, number of candidates),
	// further reduced by a per-request constraint.
	MaxAttempts int

	// OverallDeadline caps the total wall-clock budget of one dispatch.
	// The effective deadline is min(sum of candidate timeouts, OverallDeadline).
	OverallDeadline time.Duration
}

// DefaultConfig returns the default dispatch tunables.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     4,
		OverallDeadline: 60 * time.Second,
	}
}

// Dispatcher orchestrates attempts across the provider pool. Each Dispatch
// call runs independently; the only shared mutable state is the per-provider
// health trackers, each guarded by its own lock.
type Dispatcher struct {
	invokers  []providers.Invoker
	trackers  *health.Set
	cfg       Config
	recorders []AttemptRecorder
	stats     *AtomicStats
	logger    *slog.Logger

	// now is injectable for deterministic deadline tests.
	now func() time.Time
}

// NewDispatcher creates a dispatcher over the active provider set.
//
// The recorder list must include the metrics aggregator: health trackers are
// updated only through recorders, and the dispatcher consults them when
// building candidate order. An empty invoker set returns
// providers.ErrNoProvidersConfigured, the subsystem's only fatal error.
func NewDispatcher(invokers []providers.Invoker, trackers *health.Set, cfg Config, recorders ...AttemptRecorder) (*Dispatcher, error) {
	if len(invokers) == 0 {
		return nil, providers.ErrNoProvidersConfigured
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.OverallDeadline <= 0 {
		cfg.OverallDeadline = DefaultConfig().OverallDeadline
	}

	return &Dispatcher{
		invokers:  invokers,
		trackers:  trackers,
		cfg:       cfg,
		recorders: recorders,
		stats:     NewAtomicStats(),
		logger:    slog.Default().With("component", "dispatch"),
		now:       time.Now,
	}, nil
}

// SetClock replaces the dispatcher's time source for tests.
func (d *Dispatcher) SetClock(now func() time.Time) {
	d.now = now
}

// candidate pairs an invoker with the health snapshot taken when the
// candidate order was built.
type candidate struct {
	invoker providers.Invoker
	desc    *providers.Descriptor
	stats   health.Stats
}

// Dispatch runs one request through the provider pool and returns the
// aggregate result. It never returns an error: exhaustion, timeouts and
// caller cancellation all surface as a Result with Succeeded=false.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Result {
	start := d.now()
	d.stats.IncrementTotal()

	result := &Result{
		DispatchID: uuid.NewString(),
		Attempts:   make([]*providers.AttemptResult, 0, 2),
	}

	candidates := d.candidateOrder(req.Constraints.PreferredProvider)
	if len(candidates) == 0 {
		// Unreachable with a non-empty pool: the last-resort rule always
		// yields at least one candidate. Kept as a guard for an empty set.
		d.stats.IncrementExhausted()
		result.TotalLatency = d.now().Sub(start)
		return result
	}

	maxAttempts := d.maxAttempts(len(candidates), req.Constraints.MaxAttempts)
	overall := d.overallDeadline(candidates[:maxAttempts], req.Constraints.Deadline)
	deadline := start.Add(overall)

	dispatchCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	provReq := &providers.Request{
		ID:             result.DispatchID,
		Payload:        req.Payload,
		MaxOutputChars: req.MaxOutputChars,
		Metadata:       req.Metadata,
	}

	d.logger.Debug("dispatch started",
		"dispatch_id", result.DispatchID,
		"candidates", len(candidates),
		"max_attempts", maxAttempts,
		"overall_deadline", overall,
	)

	for i := 0; i < maxAttempts; i++ {
		// Never start an attempt that cannot finish in time.
		if dispatchCtx.Err() != nil || !d.now().Before(deadline) {
			result.DeadlineExceeded = true
			d.stats.IncrementDeadlineStops()
			d.logger.Warn("dispatch deadline exceeded",
				"dispatch_id", result.DispatchID,
				"attempts_completed", len(result.Attempts),
			)
			break
		}

		cand := candidates[i]
		d.stats.IncrementAttempts(cand.desc.ID)

		attempt := cand.invoker.Attempt(dispatchCtx, provReq)
		result.Attempts = append(result.Attempts, attempt)
		result.TotalEstimatedCost += attempt.EstimatedCost

		// Recording happens before the next routing decision so a
		// just-discovered failure immediately affects future dispatches.
		// The order fixed at step one is deliberately not re-checked
		// mid-loop, keeping each dispatch reproducible.
		for _, rec := range d.recorders {
			rec.RecordAttempt(attempt)
		}

		if attempt.Outcome == providers.OutcomeSuccess {
			result.Succeeded = true
			result.WinningProviderID = cand.desc.ID
			result.Response = attempt.Response
			d.stats.IncrementSucceeded()
			d.stats.IncrementWins(cand.desc.ID)
			break
		}

		if ctx.Err() != nil {
			// Caller cancelled; the in-flight attempt was already aborted
			// through the shared context.
			d.logger.Info("dispatch cancelled by caller",
				"dispatch_id", result.DispatchID,
				"attempts_completed", len(result.Attempts),
			)
			break
		}
	}

	if !result.Succeeded && !result.DeadlineExceeded {
		d.stats.IncrementExhausted()
	}

	result.TotalLatency = d.now().Sub(start)

	d.logger.Info("dispatch finished",
		"dispatch_id", result.DispatchID,
		"succeeded", result.Succeeded,
		"winning_provider", result.WinningProviderID,
		"attempts", len(result.Attempts),
		"total_latency", result.TotalLatency,
		"total_cost", result.TotalEstimatedCost,
	)

	return result
}

// candidateOrder builds the fixed attempt order for one dispatch: every
// provider whose circuit is CLOSED or HALF_OPEN, sorted by configured
// priority with health-based tie-breaks. When every circuit is OPEN, the
// single provider closest to cool-down expiry is included as a last resort,
// trading a likely-failed attempt for availability.
func (d *Dispatcher) candidateOrder(preferred string) []candidate {
	eligible := make([]candidate, 0, len(d.invokers))
	for _, inv := range d.invokers {
		desc := inv.Descriptor()
		tracker := d.trackers.Get(desc.ID)
		if tracker == nil || !tracker.Eligible() {
			continue
		}
		eligible = append(eligible, candidate{
			invoker: inv,
			desc:    desc,
			stats:   tracker.Snapshot(),
		})
	}

	if len(eligible) == 0 {
		if lastResort := d.lastResort(); lastResort != nil {
			eligible = append(eligible, *lastResort)
		}
		return eligible
	}

	// Priority first; ties broken by lower window latency, then lower
	// failure rate, then stable order by ID.
	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.desc.Priority != b.desc.Priority {
			return a.desc.Priority < b.desc.Priority
		}
		if a.stats.AvgLatency != b.stats.AvgLatency {
			return a.stats.AvgLatency < b.stats.AvgLatency
		}
		if a.stats.FailureRate != b.stats.FailureRate {
			return a.stats.FailureRate < b.stats.FailureRate
		}
		return a.desc.ID < b.desc.ID
	})

	if preferred != "" {
		for i, cand := range eligible {
			if cand.desc.ID == preferred && i > 0 {
				front := eligible[i]
				copy(eligible[1:i+1], eligible[:i])
				eligible[0] = front
				break
			}
		}
	}

	return eligible
}

// lastResort picks the open provider with the earliest opened_at, the one
// closest to cool-down expiry.
func (d *Dispatcher) lastResort() *candidate {
	var best *candidate
	for _, inv := range d.invokers {
		desc := inv.Descriptor()
		tracker := d.trackers.Get(desc.ID)
		if tracker == nil {
			continue
		}
		stats := tracker.Snapshot()
		if best == nil || stats.OpenedAt.Before(best.stats.OpenedAt) {
			best = &candidate{invoker: inv, desc: desc, stats: stats}
		}
	}
	if best != nil {
		d.logger.Warn("all circuits open, using last-resort provider",
			"provider", best.desc.ID,
			"opened_at", best.stats.OpenedAt,
		)
	}
	return best
}

// maxAttempts computes the effective attempt bound for one dispatch.
func (d *Dispatcher) maxAttempts(candidates, constraint int) int {
	limit := candidates
	if d.cfg.MaxAttempts < limit {
		limit = d.cfg.MaxAttempts
	}
	if constraint > 0 && constraint < limit {
		limit = constraint
	}
	return limit
}

// overallDeadline computes the wall-clock budget for one dispatch: the sum
// of the candidate timeouts, capped at the configured ceiling, unless the
// request overrides it.
func (d *Dispatcher) overallDeadline(candidates []candidate, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}

	var sum time.Duration
	for _, cand := range candidates {
		sum += cand.desc.Timeout
	}
	if sum == 0 || sum > d.cfg.OverallDeadline {
		return d.cfg.OverallDeadline
	}
	return sum
}

// Stats returns a snapshot of the dispatcher's counters.
func (d *Dispatcher) Stats() *Stats {
	return d.stats.Snapshot()
}

// Close closes every invoker in the pool.
func (d *Dispatcher) Close() error {
	var firstErr error
	for _, inv := range d.invokers {
		if err := inv.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
