package providers

import (
	"context"
	"time"
)

// Outcome classifies the result of a single provider attempt.
type Outcome string

const (
	// OutcomeSuccess indicates a well-formed response arrived before the
	// per-attempt timeout.
	OutcomeSuccess Outcome = "success"

	// OutcomeTimeout indicates the provider did not respond within the
	// descriptor's timeout. The in-flight call is cancelled and no partial
	// response is returned.
	OutcomeTimeout Outcome = "timeout"

	// OutcomeTransientFailure indicates a provider-reported rate-limit or
	// server-error signal (429, 5xx, network errors, malformed responses).
	// The same request is eligible for failover to the next provider.
	OutcomeTransientFailure Outcome = "transient_failure"

	// OutcomePermanentFailure indicates a provider-reported client-error
	// signal (4xx other than 408/429). A different provider may still accept
	// the same request, but the same provider is never retried within one
	// dispatch.
	OutcomePermanentFailure Outcome = "permanent_failure"
)

// Failed reports whether the outcome is any non-success classification.
func (o Outcome) Failed() bool {
	return o != OutcomeSuccess
}

// Descriptor is the static configuration of one upstream provider.
// It is created once from configuration at process start, never mutated,
// and safe for unsynchronized concurrent reads.
type Descriptor struct {
	// ID uniquely identifies the provider (e.g., "openai-primary").
	ID string

	// Priority is the configured rank; lower values are tried earlier.
	// Ties are broken by live health statistics.
	Priority int

	// BaseURL is the provider's API endpoint base URL.
	BaseURL string

	// CompletionPath is the path appended to BaseURL for completion calls.
	CompletionPath string

	// Model is the model identifier sent with each request.
	Model string

	// CredentialRef names the credential resolved through a CredentialSource.
	// The core never stores raw credentials in the descriptor.
	CredentialRef string

	// Timeout is the maximum wall-clock duration allowed for one attempt.
	Timeout time.Duration
}

// Request is the caller-supplied unit of work. The payload is opaque to the
// dispatch core; it is shepherded to the provider unmodified.
type Request struct {
	// ID identifies the request across attempts and audit records.
	ID string

	// Payload is the opaque content sent to the provider.
	Payload string

	// MaxOutputChars optionally bounds the generated output size.
	MaxOutputChars int

	// Metadata carries additional request context. It is never sent upstream.
	Metadata map[string]string
}

// Response is the normalized provider response, present only on success.
type Response struct {
	// Content is the generated output.
	Content string `json:"content"`

	// Model is the model that produced the output, as reported upstream.
	Model string `json:"model,omitempty"`

	// PromptChars and CompletionChars are the request/response sizes used
	// for post-hoc cost estimation.
	PromptChars     int `json:"prompt_chars"`
	CompletionChars int `json:"completion_chars"`
}

// AttemptResult is the normalized record of one attempt against one provider.
// It is immutable once constructed and is consumed both by the dispatcher
// (routing decision) and by the metrics aggregator (health update).
type AttemptResult struct {
	// RequestID echoes the dispatch-scoped request ID, tying the attempt
	// to its dispatch in logs and audit records.
	RequestID string `json:"request_id,omitempty"`

	// ProviderID is the descriptor ID of the attempted provider.
	ProviderID string `json:"provider_id"`

	// Outcome classifies the attempt.
	Outcome Outcome `json:"outcome"`

	// Latency is the wall-clock duration of the attempt.
	Latency time.Duration `json:"latency"`

	// Response is populated only when Outcome is OutcomeSuccess.
	Response *Response `json:"response,omitempty"`

	// Err carries failure detail for any non-success outcome.
	Err error `json:"-"`

	// StatusCode is the upstream HTTP status, 0 when not applicable.
	StatusCode int `json:"status_code,omitempty"`

	// EstimatedCost is the post-hoc cost estimate in USD for this attempt.
	EstimatedCost float64 `json:"estimated_cost"`

	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`
}

// ErrorDetail returns the failure detail as a string, or "" on success.
func (r *AttemptResult) ErrorDetail() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Invoker performs exactly one attempt against exactly one provider.
//
// Attempt applies the descriptor's timeout, classifies every failure mode,
// and always returns a non-nil AttemptResult. It must respect context
// cancellation so that discarded work does not keep running upstream.
type Invoker interface {
	Attempt(ctx context.Context, req *Request) *AttemptResult

	// Descriptor returns the static configuration this invoker is bound to.
	Descriptor() *Descriptor

	// Close releases any resources held by the invoker (HTTP connections).
	Close() error
}
