// Package health tracks per-provider rolling-window statistics and drives
// the three-state circuit breaker that decides, independently per provider,
// whether that provider is currently eligible to receive traffic.
//
// Each provider owns one Tracker guarded by its own mutex, so contention
// scales with request volume rather than provider count. The OPEN to
// HALF_OPEN transition is computed lazily from the elapsed cool-down at
// query time; there are no background timers, and tests inject a fake clock.
package health
