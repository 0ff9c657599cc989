// Package audit provides an optional persistent trail of attempt results.
//
// The dispatch core keeps statistics in memory only; enabling audit pairs
// it with an external SQLite store, explicitly opted into by the caller.
// Records are written asynchronously off the dispatch path and pruned on a
// cron schedule.
package audit
