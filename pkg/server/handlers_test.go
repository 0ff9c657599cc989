package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mock "github.com/colmeta/copilot-dispatch/internal/dispatch"
	"github.com/colmeta/copilot-dispatch/pkg/audit"
	"github.com/colmeta/copilot-dispatch/pkg/config"
	"github.com/colmeta/copilot-dispatch/pkg/dispatch"
	"github.com/colmeta/copilot-dispatch/pkg/health"
	"github.com/colmeta/copilot-dispatch/pkg/metrics"
	"github.com/colmeta/copilot-dispatch/pkg/providers"
)

// stubStore is an in-memory audit store for handler tests.
type stubStore struct {
	records []*audit.Record
}

func (s *stubStore) Save(ctx context.Context, record *audit.Record) error {
	s.records = append(s.records, record)
	return nil
}

func (s *stubStore) Query(ctx context.Context, filter audit.Filter) ([]*audit.Record, error) {
	return s.records, nil
}

func (s *stubStore) Prune(ctx context.Context, cutoff time.Time, maxRecords int64) (int64, error) {
	return 0, nil
}

func (s *stubStore) Close() error { return nil }

type testHarness struct {
	handler  http.Handler
	trackers *health.Set
}

func newTestServer(t *testing.T, store audit.Store, invokers ...*mock.MockInvoker) *testHarness {
	t.Helper()

	if len(invokers) == 0 {
		invokers = []*mock.MockInvoker{mock.NewMockInvoker("primary", 1)}
	}

	pool := make([]providers.Invoker, 0, len(invokers))
	ids := make([]string, 0, len(invokers))
	for _, inv := range invokers {
		pool = append(pool, inv)
		ids = append(ids, inv.Descriptor().ID)
	}

	trackers := health.NewSet(ids, health.DefaultConfig())
	agg := metrics.NewAggregator(trackers, "test", nil)

	d, err := dispatch.NewDispatcher(pool, trackers, dispatch.DefaultConfig(), agg)
	if err != nil {
		t.Fatalf("NewDispatcher() error = %v", err)
	}

	cfg := config.NewDefault()
	srv := NewServer(cfg.Server, cfg.Telemetry.Metrics, d, agg, store)
	return &testHarness{handler: srv.Handler(), trackers: trackers}
}

func TestDispatchEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	body, _ := json.Marshal(dispatch.Request{Payload: "write a haiku"})
	req := httptest.NewRequest(http.MethodPost, "/v1/dispatch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body.String())
	}

	var result dispatch.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if !result.Succeeded {
		t.Error("result.Succeeded = false")
	}
	if result.WinningProviderID != "primary" {
		t.Errorf("WinningProviderID = %q, want primary", result.WinningProviderID)
	}
	if result.DispatchID == "" {
		t.Error("DispatchID empty")
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("X-Request-ID header missing from response")
	}
}

func TestDispatchEndpointExhaustionIsStillOK(t *testing.T) {
	failing := mock.NewMockInvoker("primary", 1, mock.Script{
		Outcome: providers.OutcomeTransientFailure, Status: 503,
	})
	h := newTestServer(t, nil, failing)

	body, _ := json.Marshal(dispatch.Request{Payload: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/v1/dispatch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	// Provider failure is data, not an HTTP error.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var result dispatch.Result
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Succeeded {
		t.Error("result.Succeeded = true with failing provider")
	}
	if len(result.Attempts) != 1 {
		t.Errorf("len(Attempts) = %d, want 1", len(result.Attempts))
	}
}

func TestDispatchEndpointBadRequests(t *testing.T) {
	h := newTestServer(t, nil)

	tests := []struct {
		name       string
		method     string
		body       string
		wantStatus int
	}{
		{
			name:       "wrong method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "malformed json",
			method:     http.MethodPost,
			body:       "{not json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty payload",
			method:     http.MethodPost,
			body:       `{"payload":""}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/v1/dispatch", bytes.NewReader([]byte(tt.body)))
			rec := httptest.NewRecorder()
			h.handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestProvidersEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	// Generate some traffic first.
	body, _ := json.Marshal(dispatch.Request{Payload: "hello"})
	req := httptest.NewRequest(http.MethodPost, "/v1/dispatch", bytes.NewReader(body))
	h.handler.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/v1/providers", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var report metrics.Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode report: %v", err)
	}
	if len(report.Providers) != 1 {
		t.Fatalf("len(Providers) = %d, want 1", len(report.Providers))
	}
	if report.Providers[0].Calls != 1 {
		t.Errorf("Calls = %d, want 1", report.Providers[0].Calls)
	}
}

func TestStatsEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var stats dispatch.Stats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReadyzEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with closed circuit", rec.Code)
	}

	// Open the only circuit; the service is no longer ready.
	for i := 0; i < 3; i++ {
		h.trackers.Get("primary").Record(false, time.Millisecond)
	}

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 with all circuits open", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuditEndpoint(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := newTestServer(t, nil)

		req := httptest.NewRequest(http.MethodGet, "/v1/audit", nil)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404 when audit disabled", rec.Code)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		store := &stubStore{records: []*audit.Record{{
			ID:         "rec-1",
			DispatchID: "dispatch-1",
			ProviderID: "primary",
			Outcome:    "success",
			CreatedAt:  time.Now(),
		}}}
		h := newTestServer(t, store)

		req := httptest.NewRequest(http.MethodGet, "/v1/audit?provider=primary&limit=10", nil)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		var resp struct {
			Records []*audit.Record `json:"records"`
			Count   int             `json:"count"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Count != 1 || len(resp.Records) != 1 {
			t.Errorf("count = %d, records = %d, want 1/1", resp.Count, len(resp.Records))
		}
	})

	t.Run("bad query parameter", func(t *testing.T) {
		h := newTestServer(t, &stubStore{})

		req := httptest.NewRequest(http.MethodGet, "/v1/audit?since=yesterday", nil)
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestRequestIDEchoed(t *testing.T) {
	h := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "client-supplied-id")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	if got := rec.Header().Get(RequestIDHeader); got != "client-supplied-id" {
		t.Errorf("X-Request-ID = %q, want client-supplied-id", got)
	}
}
