// Package metrics is the side-channel consumer of every attempt result.
//
// The Aggregator updates per-provider health trackers, maintains Prometheus
// collectors, and accumulates the usage/cost totals behind the Snapshot
// reporting API. The dispatcher reads health trackers directly rather than
// going through the reporting API, so the hot path never depends on
// reporting formatting.
package metrics
