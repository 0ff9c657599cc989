package dispatch

import (
	"time"

	"github.com/colmeta/copilot-dispatch/pkg/providers"
)

// Constraints are optional per-request overrides.
type Constraints struct {
	// PreferredProvider moves the named provider to the front of the
	// candidate order when it is eligible. It does not resurrect an
	// ineligible provider.
	PreferredProvider string `json:"preferred_provider,omitempty"`

	// MaxAttempts bounds the number of providers tried for this request.
	// Zero means the configured default.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// Deadline overrides the computed overall dispatch deadline.
	// Zero means the configured default.
	Deadline time.Duration `json:"deadline,omitempty"`
}

// Request is one caller request to be shepherded through the provider pool.
type Request struct {
	// Payload is the opaque content forwarded to whichever provider serves
	// the request. The core never parses it.
	Payload string `json:"payload"`

	// MaxOutputChars optionally bounds the generated output size.
	MaxOutputChars int `json:"max_output_chars,omitempty"`

	// Metadata carries caller context; it is never sent upstream.
	Metadata map[string]string `json:"metadata,omitempty"`

	// Constraints are optional per-request overrides.
	Constraints Constraints `json:"constraints,omitempty"`
}

// Result is the aggregate outcome of one dispatch, returned to the caller
// regardless of how many providers were tried or whether any succeeded.
type Result struct {
	// DispatchID uniquely identifies this dispatch across attempts, logs
	// and audit records.
	DispatchID string `json:"dispatch_id"`

	// Succeeded reports whether any provider served the request.
	Succeeded bool `json:"succeeded"`

	// WinningProviderID is set iff Succeeded.
	WinningProviderID string `json:"winning_provider_id,omitempty"`

	// Response is the normalized response from the winning provider.
	Response *providers.Response `json:"response,omitempty"`

	// Attempts is the ordered list of all attempt results for this
	// dispatch, kept for auditability.
	Attempts []*providers.AttemptResult `json:"attempts"`

	// TotalLatency is the wall-clock duration of the whole dispatch.
	TotalLatency time.Duration `json:"total_latency"`

	// TotalEstimatedCost is the summed cost estimate across all attempts,
	// including failed ones that still consumed provider work.
	TotalEstimatedCost float64 `json:"total_estimated_cost"`

	// DeadlineExceeded reports that the loop stopped because the overall
	// dispatch deadline would have been exceeded by another attempt.
	DeadlineExceeded bool `json:"deadline_exceeded,omitempty"`
}

// AttemptRecorder consumes every attempt result, in order, before the
// dispatcher decides its next step. The metrics aggregator implements this
// to update health trackers; the audit recorder implements it as a
// side-channel consumer.
type AttemptRecorder interface {
	RecordAttempt(result *providers.AttemptResult)
}
