package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/colmeta/copilot-dispatch/pkg/audit"
	"github.com/colmeta/copilot-dispatch/pkg/dispatch"
	"github.com/colmeta/copilot-dispatch/pkg/health"
	"github.com/colmeta/copilot-dispatch/pkg/metrics"
)

const maxDispatchBodyBytes = 1 << 20 // 1 MiB

// DispatchHandler handles dispatch submissions.
type DispatchHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewDispatchHandler creates the dispatch submission handler.
func NewDispatchHandler(d *dispatch.Dispatcher) *DispatchHandler {
	return &DispatchHandler{dispatcher: d}
}

// ServeHTTP accepts a dispatch request and returns the aggregate result.
// The response is 200 whether or not a provider served the request; the
// result body carries the outcome. Only malformed input is an HTTP error.
func (h *DispatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dispatch.Request
	body := http.MaxBytesReader(w, r.Body, maxDispatchBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Payload == "" {
		writeError(w, http.StatusBadRequest, "payload must not be empty")
		return
	}

	result := h.dispatcher.Dispatch(r.Context(), &req)

	slog.InfoContext(r.Context(), "dispatch completed",
		"dispatch_id", result.DispatchID,
		"succeeded", result.Succeeded,
		"winning_provider", result.WinningProviderID,
		"attempts", len(result.Attempts),
		"total_latency_ms", result.TotalLatency.Milliseconds(),
	)

	writeJSON(w, http.StatusOK, result)
}

// ProvidersHandler serves the per-provider health and usage report.
type ProvidersHandler struct {
	aggregator *metrics.Aggregator
}

// NewProvidersHandler creates the provider report handler.
func NewProvidersHandler(agg *metrics.Aggregator) *ProvidersHandler {
	return &ProvidersHandler{aggregator: agg}
}

func (h *ProvidersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.aggregator.Snapshot())
}

// StatsHandler serves the dispatcher's lifetime counters.
type StatsHandler struct {
	dispatcher *dispatch.Dispatcher
}

// NewStatsHandler creates the dispatcher statistics handler.
func NewStatsHandler(d *dispatch.Dispatcher) *StatsHandler {
	return &StatsHandler{dispatcher: d}
}

func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.dispatcher.Stats())
}

// AuditHandler serves persisted attempt records. It responds 404 when the
// audit trail is disabled.
type AuditHandler struct {
	store audit.Store
}

// NewAuditHandler creates the audit query handler. store may be nil.
func NewAuditHandler(store audit.Store) *AuditHandler {
	return &AuditHandler{store: store}
}

func (h *AuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.store == nil {
		http.Error(w, "audit trail is not enabled", http.StatusNotFound)
		return
	}

	filter, err := parseAuditFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.store.Query(r.Context(), filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// parseAuditFilter builds an audit filter from query parameters:
// provider, since (RFC 3339), until (RFC 3339), limit.
func parseAuditFilter(r *http.Request) (audit.Filter, error) {
	var filter audit.Filter

	q := r.URL.Query()
	filter.ProviderID = q.Get("provider")

	if val := q.Get("since"); val != "" {
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return filter, &queryError{param: "since", err: err}
		}
		filter.Since = t
	}
	if val := q.Get("until"); val != "" {
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return filter, &queryError{param: "until", err: err}
		}
		filter.Until = t
	}
	if val := q.Get("limit"); val != "" {
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			return filter, &queryError{param: "limit", err: err}
		}
		filter.Limit = n
	}

	return filter, nil
}

type queryError struct {
	param string
	err   error
}

func (e *queryError) Error() string {
	return "invalid query parameter " + e.param
}

func (e *queryError) Unwrap() error { return e.err }

// HealthHandler handles liveness probes.
type HealthHandler struct{}

// NewHealthHandler creates the liveness handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

// ReadyHandler handles readiness probes. The service is ready when at
// least one provider circuit is not open.
type ReadyHandler struct {
	aggregator *metrics.Aggregator
}

// NewReadyHandler creates the readiness handler.
func NewReadyHandler(agg *metrics.Aggregator) *ReadyHandler {
	return &ReadyHandler{aggregator: agg}
}

func (h *ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report := h.aggregator.Snapshot()

	available := 0
	for _, p := range report.Providers {
		if p.CircuitState != health.StateOpen {
			available++
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if available == 0 {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status": status,
		"providers": map[string]interface{}{
			"available": available,
			"total":     len(report.Providers),
		},
		"timestamp": time.Now().Unix(),
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]interface{}{
		"error": map[string]interface{}{
			"message": message,
			"code":    statusCode,
		},
	})
}
