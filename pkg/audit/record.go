package audit

import (
	"context"
	"time"
)

// Record is one persisted attempt result.
type Record struct {
	// ID is the unique record identifier (UUID).
	ID string `json:"id"`

	// DispatchID ties the record to the dispatch that produced it.
	DispatchID string `json:"dispatch_id"`

	// ProviderID is the attempted provider.
	ProviderID string `json:"provider_id"`

	// Outcome is the attempt classification.
	Outcome string `json:"outcome"`

	// LatencyMS is the attempt duration in milliseconds.
	LatencyMS int64 `json:"latency_ms"`

	// StatusCode is the upstream HTTP status, 0 when not applicable.
	StatusCode int `json:"status_code,omitempty"`

	// EstimatedCost is the attempt's cost estimate in USD.
	EstimatedCost float64 `json:"estimated_cost"`

	// ErrorDetail holds the failure detail for non-success outcomes.
	ErrorDetail string `json:"error_detail,omitempty"`

	// CreatedAt is when the attempt started.
	CreatedAt time.Time `json:"created_at"`
}

// Filter selects records for a query.
type Filter struct {
	// ProviderID restricts results to one provider when non-empty.
	ProviderID string

	// Since and Until bound the creation time range; zero values are open.
	Since time.Time
	Until time.Time

	// Limit caps the number of returned records; 0 uses the store default.
	Limit int
}

// Store persists attempt records.
type Store interface {
	// Save writes one record.
	Save(ctx context.Context, record *Record) error

	// Query returns records matching the filter, newest first.
	Query(ctx context.Context, filter Filter) ([]*Record, error)

	// Prune deletes records created before the cutoff and, when maxRecords
	// is positive, trims the table to that many newest records. It returns
	// the number of deleted rows.
	Prune(ctx context.Context, cutoff time.Time, maxRecords int64) (int64, error)

	// Close releases store resources.
	Close() error
}
