package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	mock "github.com/colmeta/copilot-dispatch/internal/dispatch"
	"github.com/colmeta/copilot-dispatch/pkg/health"
	"github.com/colmeta/copilot-dispatch/pkg/metrics"
	"github.com/colmeta/copilot-dispatch/pkg/providers"
)

// newTestDispatcher wires a dispatcher with the given mocks, a fresh
// tracker set and a private metrics registry.
func newTestDispatcher(t *testing.T, cfg Config, invokers ...*mock.MockInvoker) (*Dispatcher, *health.Set) {
	t.Helper()

	pool := make([]providers.Invoker, 0, len(invokers))
	ids := make([]string, 0, len(invokers))
	for _, inv := range invokers {
		pool = append(pool, inv)
		ids = append(ids, inv.Descriptor().ID)
	}

	trackers := health.NewSet(ids, health.DefaultConfig())
	agg := metrics.NewAggregator(trackers, "test", nil)

	d, err := NewDispatcher(pool, trackers, cfg, agg)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}
	return d, trackers
}

func failing(outcome providers.Outcome) mock.Script {
	return mock.Script{Outcome: outcome, Status: 500, Err: errors.New("upstream error")}
}

func TestNewDispatcherRequiresProviders(t *testing.T) {
	trackers := health.NewSet(nil, health.DefaultConfig())

	_, err := NewDispatcher(nil, trackers, DefaultConfig())
	if !errors.Is(err, providers.ErrNoProvidersConfigured) {
		t.Errorf("NewDispatcher() error = %v, want ErrNoProvidersConfigured", err)
	}
}

func TestDispatchFirstProviderWins(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1)
	secondary := mock.NewMockInvoker("secondary", 2)
	d, _ := newTestDispatcher(t, DefaultConfig(), primary, secondary)

	result := d.Dispatch(context.Background(), &Request{Payload: "hello"})

	if !result.Succeeded {
		t.Fatal("Dispatch() result not succeeded")
	}
	if result.WinningProviderID != "primary" {
		t.Errorf("WinningProviderID = %q, want primary", result.WinningProviderID)
	}
	if len(result.Attempts) != 1 {
		t.Errorf("len(Attempts) = %d, want 1", len(result.Attempts))
	}
	if secondary.Calls() != 0 {
		t.Errorf("secondary.Calls() = %d, want 0", secondary.Calls())
	}
	if result.DispatchID == "" {
		t.Error("DispatchID is empty")
	}
	if result.Response == nil || result.Response.Content == "" {
		t.Error("Response missing from successful dispatch")
	}
}

func TestDispatchFailsOverToNextProvider(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1, failing(providers.OutcomeTransientFailure))
	secondary := mock.NewMockInvoker("secondary", 2)
	d, trackers := newTestDispatcher(t, DefaultConfig(), primary, secondary)

	result := d.Dispatch(context.Background(), &Request{Payload: "hello"})

	if !result.Succeeded {
		t.Fatal("Dispatch() result not succeeded after failover")
	}
	if result.WinningProviderID != "secondary" {
		t.Errorf("WinningProviderID = %q, want secondary", result.WinningProviderID)
	}
	if len(result.Attempts) != 2 {
		t.Fatalf("len(Attempts) = %d, want 2", len(result.Attempts))
	}
	if result.Attempts[0].ProviderID != "primary" {
		t.Errorf("first attempt provider = %q, want primary", result.Attempts[0].ProviderID)
	}
	if result.Attempts[0].Outcome != providers.OutcomeTransientFailure {
		t.Errorf("first attempt outcome = %v, want transient_failure", result.Attempts[0].Outcome)
	}

	// The failure was folded into the tracker before the dispatch ended.
	if got := trackers.Get("primary").Snapshot().ConsecutiveFailures; got != 1 {
		t.Errorf("primary consecutive failures = %d, want 1", got)
	}
}

func TestDispatchExhaustsPool(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1, failing(providers.OutcomeTransientFailure))
	secondary := mock.NewMockInvoker("secondary", 2, failing(providers.OutcomePermanentFailure))
	d, _ := newTestDispatcher(t, DefaultConfig(), primary, secondary)

	result := d.Dispatch(context.Background(), &Request{Payload: "hello"})

	if result.Succeeded {
		t.Fatal("Dispatch() succeeded with all providers failing")
	}
	if result.WinningProviderID != "" {
		t.Errorf("WinningProviderID = %q, want empty", result.WinningProviderID)
	}
	if len(result.Attempts) != 2 {
		t.Errorf("len(Attempts) = %d, want 2", len(result.Attempts))
	}
	if result.Response != nil {
		t.Error("Response set on exhausted dispatch")
	}
}

func TestDispatchSameProviderNeverRetried(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1, failing(providers.OutcomeTimeout))
	secondary := mock.NewMockInvoker("secondary", 2, failing(providers.OutcomeTransientFailure))
	d, _ := newTestDispatcher(t, DefaultConfig(), primary, secondary)

	d.Dispatch(context.Background(), &Request{Payload: "hello"})

	if primary.Calls() != 1 {
		t.Errorf("primary.Calls() = %d, want 1", primary.Calls())
	}
	if secondary.Calls() != 1 {
		t.Errorf("secondary.Calls() = %d, want 1", secondary.Calls())
	}
}

func TestDispatchMaxAttemptsCap(t *testing.T) {
	invokers := []*mock.MockInvoker{
		mock.NewMockInvoker("p1", 1, failing(providers.OutcomeTransientFailure)),
		mock.NewMockInvoker("p2", 2, failing(providers.OutcomeTransientFailure)),
		mock.NewMockInvoker("p3", 3, failing(providers.OutcomeTransientFailure)),
		mock.NewMockInvoker("p4", 4, failing(providers.OutcomeTransientFailure)),
		mock.NewMockInvoker("p5", 5),
	}
	d, _ := newTestDispatcher(t, DefaultConfig(), invokers...)

	result := d.Dispatch(context.Background(), &Request{Payload: "hello"})

	if result.Succeeded {
		t.Error("Dispatch() succeeded past the attempt cap")
	}
	if len(result.Attempts) != 4 {
		t.Errorf("len(Attempts) = %d, want 4", len(result.Attempts))
	}
	if invokers[4].Calls() != 0 {
		t.Errorf("fifth provider was attempted despite the cap")
	}
}

func TestDispatchPerRequestAttemptConstraint(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1, failing(providers.OutcomeTransientFailure))
	secondary := mock.NewMockInvoker("secondary", 2)
	d, _ := newTestDispatcher(t, DefaultConfig(), primary, secondary)

	result := d.Dispatch(context.Background(), &Request{
		Payload:     "hello",
		Constraints: Constraints{MaxAttempts: 1},
	})

	if result.Succeeded {
		t.Error("Dispatch() succeeded with a one-attempt constraint")
	}
	if len(result.Attempts) != 1 {
		t.Errorf("len(Attempts) = %d, want 1", len(result.Attempts))
	}
}

func TestDispatchPreferredProviderMovesToFront(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1)
	secondary := mock.NewMockInvoker("secondary", 2)
	d, _ := newTestDispatcher(t, DefaultConfig(), primary, secondary)

	result := d.Dispatch(context.Background(), &Request{
		Payload:     "hello",
		Constraints: Constraints{PreferredProvider: "secondary"},
	})

	if result.WinningProviderID != "secondary" {
		t.Errorf("WinningProviderID = %q, want secondary", result.WinningProviderID)
	}
	if primary.Calls() != 0 {
		t.Errorf("primary.Calls() = %d, want 0", primary.Calls())
	}
}

func TestDispatchPreferredProviderNotResurrected(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1)
	secondary := mock.NewMockInvoker("secondary", 2)
	d, trackers := newTestDispatcher(t, DefaultConfig(), primary, secondary)

	// Open secondary's circuit.
	for i := 0; i < 3; i++ {
		trackers.Get("secondary").Record(false, time.Millisecond)
	}

	result := d.Dispatch(context.Background(), &Request{
		Payload:     "hello",
		Constraints: Constraints{PreferredProvider: "secondary"},
	})

	if result.WinningProviderID != "primary" {
		t.Errorf("WinningProviderID = %q, want primary: preference must not resurrect an open circuit", result.WinningProviderID)
	}
	if secondary.Calls() != 0 {
		t.Errorf("secondary.Calls() = %d, want 0", secondary.Calls())
	}
}

func TestDispatchSkipsOpenCircuit(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1)
	secondary := mock.NewMockInvoker("secondary", 2)
	d, trackers := newTestDispatcher(t, DefaultConfig(), primary, secondary)

	for i := 0; i < 3; i++ {
		trackers.Get("primary").Record(false, time.Millisecond)
	}

	result := d.Dispatch(context.Background(), &Request{Payload: "hello"})

	if result.WinningProviderID != "secondary" {
		t.Errorf("WinningProviderID = %q, want secondary", result.WinningProviderID)
	}
	if primary.Calls() != 0 {
		t.Errorf("primary.Calls() = %d, want 0: open circuit must be skipped", primary.Calls())
	}
}

func TestDispatchLastResortWhenAllOpen(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1)
	secondary := mock.NewMockInvoker("secondary", 2)
	d, trackers := newTestDispatcher(t, DefaultConfig(), primary, secondary)

	base := time.Now()
	// secondary opened earlier than primary, so it is closest to cool-down
	// expiry and becomes the last resort.
	trackers.Get("secondary").SetClock(func() time.Time { return base.Add(-20 * time.Second) })
	trackers.Get("primary").SetClock(func() time.Time { return base.Add(-5 * time.Second) })
	for i := 0; i < 3; i++ {
		trackers.Get("primary").Record(false, time.Millisecond)
		trackers.Get("secondary").Record(false, time.Millisecond)
	}
	trackers.Get("primary").SetClock(func() time.Time { return base })
	trackers.Get("secondary").SetClock(func() time.Time { return base })

	result := d.Dispatch(context.Background(), &Request{Payload: "hello"})

	if !result.Succeeded {
		t.Fatal("Dispatch() did not succeed through last-resort provider")
	}
	if result.WinningProviderID != "secondary" {
		t.Errorf("WinningProviderID = %q, want secondary (earliest opened)", result.WinningProviderID)
	}
	if len(result.Attempts) != 1 {
		t.Errorf("len(Attempts) = %d, want 1: last resort is a single candidate", len(result.Attempts))
	}
	if primary.Calls() != 0 {
		t.Errorf("primary.Calls() = %d, want 0", primary.Calls())
	}
}

// stepClock returns pre-programmed instants in sequence, repeating the last
// once exhausted.
type stepClock struct {
	times []time.Time
	idx   int
}

func (c *stepClock) Now() time.Time {
	t := c.times[c.idx]
	if c.idx < len(c.times)-1 {
		c.idx++
	}
	return t
}

func TestDispatchStopsAtOverallDeadline(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1, failing(providers.OutcomeTransientFailure))
	secondary := mock.NewMockInvoker("secondary", 2)
	d, _ := newTestDispatcher(t, DefaultConfig(), primary, secondary)

	// After the first attempt the clock has moved past the 10s budget, so
	// the second attempt must never start.
	start := time.Now()
	d.SetClock((&stepClock{times: []time.Time{
		start,                       // dispatch start
		start,                       // pre-attempt check, first attempt
		start.Add(11 * time.Second), // pre-attempt check, second attempt
		start.Add(11 * time.Second), // total latency
	}}).Now)

	result := d.Dispatch(context.Background(), &Request{
		Payload:     "hello",
		Constraints: Constraints{Deadline: 10 * time.Second},
	})

	if result.Succeeded {
		t.Error("Dispatch() succeeded past its deadline")
	}
	if !result.DeadlineExceeded {
		t.Error("DeadlineExceeded = false, want true")
	}
	if len(result.Attempts) != 1 {
		t.Errorf("len(Attempts) = %d, want 1", len(result.Attempts))
	}
	if secondary.Calls() != 0 {
		t.Errorf("secondary.Calls() = %d, want 0: attempt started past deadline", secondary.Calls())
	}
}

func TestDispatchAccumulatesCost(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1, mock.Script{
		Outcome: providers.OutcomeTransientFailure, Cost: 0.002,
	})
	secondary := mock.NewMockInvoker("secondary", 2, mock.Script{
		Outcome: providers.OutcomeSuccess, Cost: 0.003, Content: "ok",
	})
	d, _ := newTestDispatcher(t, DefaultConfig(), primary, secondary)

	result := d.Dispatch(context.Background(), &Request{Payload: "hello"})

	want := 0.005
	if diff := result.TotalEstimatedCost - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("TotalEstimatedCost = %v, want %v", result.TotalEstimatedCost, want)
	}
}

func TestDispatchStats(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1,
		failing(providers.OutcomeTransientFailure),
		mock.Script{Outcome: providers.OutcomeSuccess, Content: "ok"},
	)
	secondary := mock.NewMockInvoker("secondary", 2, failing(providers.OutcomeTransientFailure))
	d, _ := newTestDispatcher(t, DefaultConfig(), primary, secondary)

	d.Dispatch(context.Background(), &Request{Payload: "one"}) // exhausts
	d.Dispatch(context.Background(), &Request{Payload: "two"}) // primary wins

	stats := d.Stats()
	if stats.TotalDispatches != 2 {
		t.Errorf("TotalDispatches = %d, want 2", stats.TotalDispatches)
	}
	if stats.Succeeded != 1 {
		t.Errorf("Succeeded = %d, want 1", stats.Succeeded)
	}
	if stats.Exhausted != 1 {
		t.Errorf("Exhausted = %d, want 1", stats.Exhausted)
	}
	if stats.AttemptsPerProvider["primary"] != 2 {
		t.Errorf("AttemptsPerProvider[primary] = %d, want 2", stats.AttemptsPerProvider["primary"])
	}
	if stats.WinsPerProvider["primary"] != 1 {
		t.Errorf("WinsPerProvider[primary] = %d, want 1", stats.WinsPerProvider["primary"])
	}
}

func TestDispatchTieBreakByLatency(t *testing.T) {
	slow := mock.NewMockInvoker("slow", 1)
	fast := mock.NewMockInvoker("fast", 1)
	d, trackers := newTestDispatcher(t, DefaultConfig(), slow, fast)

	trackers.Get("slow").Record(true, 800*time.Millisecond)
	trackers.Get("fast").Record(true, 50*time.Millisecond)

	result := d.Dispatch(context.Background(), &Request{Payload: "hello"})

	if result.WinningProviderID != "fast" {
		t.Errorf("WinningProviderID = %q, want fast (lower window latency)", result.WinningProviderID)
	}
}

func TestDispatcherCloseClosesInvokers(t *testing.T) {
	primary := mock.NewMockInvoker("primary", 1)
	d, _ := newTestDispatcher(t, DefaultConfig(), primary)

	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !primary.Closed() {
		t.Error("invoker not closed")
	}
}
