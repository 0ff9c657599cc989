// Package dispatch orchestrates the ordered sequence of attempts across the
// provider pool for a single caller request.
//
// A dispatch is a bounded linear state machine: the candidate order is fixed
// once at the start (for determinism within one dispatch), providers are
// invoked in turn, every attempt outcome is fed to the recorder before the
// next step is decided, and iteration stops at the first success, at
// exhaustion, or when the overall deadline would be exceeded.
//
// Dispatch never returns a Go error and never panics: callers always receive
// a Result, even when every provider failed. What to do when everything
// fails is the caller's decision.
package dispatch
