package health

import (
	"log/slog"
	"sync"
	"time"
)

// CircuitState is the circuit breaker state of one provider.
type CircuitState string

const (
	// StateClosed means the provider receives traffic normally.
	StateClosed CircuitState = "closed"

	// StateOpen means the provider is skipped entirely until the cool-down
	// elapses.
	StateOpen CircuitState = "open"

	// StateHalfOpen means the provider is eligible for a trial attempt.
	// Success closes the circuit; any failure re-opens it and restarts the
	// cool-down.
	StateHalfOpen CircuitState = "half_open"
)

// Config contains circuit breaker tunables.
type Config struct {
	// WindowSize is the number of recent outcomes kept per provider.
	WindowSize int

	// FailureThreshold opens the circuit after this many consecutive failures.
	FailureThreshold int

	// FailureRateThreshold opens the circuit when the rolling-window failure
	// rate exceeds this ratio, once MinSamples outcomes are recorded.
	FailureRateThreshold float64

	// MinSamples is the minimum window population before the failure rate
	// is evaluated.
	MinSamples int

	// CoolDown is how long an OPEN circuit blocks traffic before a trial
	// attempt is allowed.
	CoolDown time.Duration
}

// DefaultConfig returns the default breaker tunables.
func DefaultConfig() Config {
	return Config{
		WindowSize:           20,
		FailureThreshold:     3,
		FailureRateThreshold: 0.5,
		MinSamples:           5,
		CoolDown:             30 * time.Second,
	}
}

// Stats is a point-in-time view of one tracker's rolling window, used for
// candidate ordering and reporting.
type Stats struct {
	State               CircuitState
	ConsecutiveFailures int
	Samples             int
	FailureRate         float64
	AvgLatency          time.Duration
	OpenedAt            time.Time
}

// Tracker holds the mutable health state of a single provider: the rolling
// outcome window, the consecutive failure count, and the circuit state.
//
// All methods are safe for concurrent use. State transitions are
// check-and-set under the tracker's mutex, so two concurrent dispatches
// cannot flip the circuit in conflicting order.
type Tracker struct {
	providerID string
	cfg        Config
	logger     *slog.Logger

	mu                  sync.Mutex
	window              *window
	consecutiveFailures int
	state               CircuitState
	openedAt            time.Time

	// now is injectable for deterministic cool-down tests.
	now func() time.Time
}

// NewTracker creates a tracker for one provider in the CLOSED state.
func NewTracker(providerID string, cfg Config) *Tracker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = DefaultConfig().WindowSize
	}
	return &Tracker{
		providerID: providerID,
		cfg:        cfg,
		logger:     slog.Default().With("component", "health.tracker", "provider", providerID),
		window:     newWindow(cfg.WindowSize),
		state:      StateClosed,
		now:        time.Now,
	}
}

// SetClock replaces the tracker's time source. Tests use this to step
// through cool-down expiry without sleeping.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

// ProviderID returns the provider this tracker belongs to.
func (t *Tracker) ProviderID() string {
	return t.providerID
}

// Eligible reports whether the provider may receive traffic now.
//
// An OPEN circuit whose cool-down has elapsed transitions to HALF_OPEN here,
// lazily: there is no timer goroutine. In HALF_OPEN the provider is eligible
// for a trial attempt; the dispatcher never attempts a provider twice within
// one dispatch, which bounds trials to one per dispatch.
func (t *Tracker) Eligible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if t.now().Sub(t.openedAt) >= t.cfg.CoolDown {
			t.state = StateHalfOpen
			t.logger.Info("circuit half-open, allowing trial attempt",
				"cool_down", t.cfg.CoolDown,
			)
			return true
		}
		return false
	default:
		return false
	}
}

// Record folds one attempt outcome into the window and evaluates circuit
// transitions. It is called by the metrics aggregator after every attempt,
// before the dispatcher decides its next step.
func (t *Tracker) Record(success bool, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.window.push(success, latency)

	if success {
		t.consecutiveFailures = 0
		if t.state != StateClosed {
			t.logger.Info("circuit closed", "previous_state", string(t.state))
			t.state = StateClosed
			t.openedAt = time.Time{}
		}
		return
	}

	t.consecutiveFailures++

	switch t.state {
	case StateHalfOpen:
		// Failed trial: re-open and restart the cool-down.
		t.open("trial attempt failed")

	case StateOpen:
		// Last-resort attempt against an open circuit failed; restart the
		// cool-down so the breaker keeps shedding traffic.
		t.openedAt = t.now()

	case StateClosed:
		if t.consecutiveFailures >= t.cfg.FailureThreshold {
			t.open("consecutive failure threshold reached")
		} else if t.window.size() >= t.cfg.MinSamples &&
			t.window.failureRate() > t.cfg.FailureRateThreshold {
			t.open("window failure rate exceeded")
		}
	}
}

// open transitions to OPEN. Caller must hold t.mu.
func (t *Tracker) open(reason string) {
	t.state = StateOpen
	t.openedAt = t.now()
	t.logger.Warn("circuit opened",
		"reason", reason,
		"consecutive_failures", t.consecutiveFailures,
		"window_failure_rate", t.window.failureRate(),
	)
}

// State returns the current circuit state without side effects.
func (t *Tracker) State() CircuitState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// OpenedAt returns when the circuit last opened (zero when never opened).
func (t *Tracker) OpenedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openedAt
}

// Snapshot returns a point-in-time copy of the tracker statistics.
func (t *Tracker) Snapshot() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Stats{
		State:               t.state,
		ConsecutiveFailures: t.consecutiveFailures,
		Samples:             t.window.size(),
		FailureRate:         t.window.failureRate(),
		AvgLatency:          t.window.avgLatency(),
		OpenedAt:            t.openedAt,
	}
}

// Set is the collection of trackers for the active provider set, one per
// provider, created at startup alongside the descriptors and never removed
// while the process runs.
type Set struct {
	trackers map[string]*Tracker
}

// NewSet creates trackers for the given provider IDs.
func NewSet(providerIDs []string, cfg Config) *Set {
	trackers := make(map[string]*Tracker, len(providerIDs))
	for _, id := range providerIDs {
		trackers[id] = NewTracker(id, cfg)
	}
	return &Set{trackers: trackers}
}

// Get returns the tracker for a provider, or nil when unknown.
func (s *Set) Get(providerID string) *Tracker {
	return s.trackers[providerID]
}

// All returns every tracker in the set. The map must not be mutated.
func (s *Set) All() map[string]*Tracker {
	return s.trackers
}
