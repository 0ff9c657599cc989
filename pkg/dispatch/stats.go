package dispatch

import (
	"sync"
	"sync/atomic"
	"time"
)

// AtomicStats tracks dispatcher statistics using atomic counters, so the
// hot path never takes a shared lock.
type AtomicStats struct {
	// totalDispatches is the number of Dispatch calls processed.
	totalDispatches atomic.Int64

	// succeeded is the number of dispatches that found a winning provider.
	succeeded atomic.Int64

	// exhausted is the number of dispatches that ran out of candidates.
	exhausted atomic.Int64

	// deadlineStops is the number of dispatches cut short by the overall
	// deadline.
	deadlineStops atomic.Int64

	// attemptsPerProvider counts attempts routed to each provider.
	attemptsPerProvider sync.Map // map[string]*atomic.Int64

	// winsPerProvider counts dispatches won by each provider.
	winsPerProvider sync.Map // map[string]*atomic.Int64

	mu            sync.RWMutex
	lastResetTime time.Time
}

// NewAtomicStats creates a fresh statistics tracker.
func NewAtomicStats() *AtomicStats {
	return &AtomicStats{lastResetTime: time.Now()}
}

// IncrementTotal increments the dispatch counter.
func (s *AtomicStats) IncrementTotal() {
	s.totalDispatches.Add(1)
}

// IncrementSucceeded increments the success counter.
func (s *AtomicStats) IncrementSucceeded() {
	s.succeeded.Add(1)
}

// IncrementExhausted increments the exhaustion counter.
func (s *AtomicStats) IncrementExhausted() {
	s.exhausted.Add(1)
}

// IncrementDeadlineStops increments the deadline-stop counter.
func (s *AtomicStats) IncrementDeadlineStops() {
	s.deadlineStops.Add(1)
}

// IncrementAttempts increments the attempt counter for a provider.
func (s *AtomicStats) IncrementAttempts(providerID string) {
	val, _ := s.attemptsPerProvider.LoadOrStore(providerID, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

// IncrementWins increments the win counter for a provider.
func (s *AtomicStats) IncrementWins(providerID string) {
	val, _ := s.winsPerProvider.LoadOrStore(providerID, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

// Stats is a point-in-time snapshot of dispatcher statistics.
type Stats struct {
	TotalDispatches     int64            `json:"total_dispatches"`
	Succeeded           int64            `json:"succeeded"`
	Exhausted           int64            `json:"exhausted"`
	DeadlineStops       int64            `json:"deadline_stops"`
	AttemptsPerProvider map[string]int64 `json:"attempts_per_provider"`
	WinsPerProvider     map[string]int64 `json:"wins_per_provider"`
	LastResetTime       time.Time        `json:"last_reset_time"`
}

// Snapshot returns a copy of the statistics that is safe to read without
// locks.
func (s *AtomicStats) Snapshot() *Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempts := make(map[string]int64)
	s.attemptsPerProvider.Range(func(key, value interface{}) bool {
		attempts[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	wins := make(map[string]int64)
	s.winsPerProvider.Range(func(key, value interface{}) bool {
		wins[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	return &Stats{
		TotalDispatches:     s.totalDispatches.Load(),
		Succeeded:           s.succeeded.Load(),
		Exhausted:           s.exhausted.Load(),
		DeadlineStops:       s.deadlineStops.Load(),
		AttemptsPerProvider: attempts,
		WinsPerProvider:     wins,
		LastResetTime:       s.lastResetTime,
	}
}
