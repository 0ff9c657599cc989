// Package server provides the HTTP boundary of dispatchd.
//
// The server exposes the dispatch endpoint, point-in-time provider and
// dispatcher statistics, liveness/readiness probes, the Prometheus metrics
// endpoint, and (when enabled) the persisted audit trail. All dispatch
// semantics live below this package; handlers translate between HTTP and
// the dispatch API and never make routing decisions themselves.
//
// Routes:
//
//	POST /v1/dispatch    submit a request for dispatch
//	GET  /v1/providers   per-provider health and usage report
//	GET  /v1/stats       dispatcher counters
//	GET  /v1/audit       persisted attempt records (audit enabled only)
//	GET  /healthz        liveness probe
//	GET  /readyz         readiness probe (at least one circuit not open)
//	GET  /metrics        Prometheus metrics (path configurable)
//
// The server shuts down gracefully on SIGINT/SIGTERM or context
// cancellation, draining in-flight dispatches within the configured
// shutdown budget.
package server
