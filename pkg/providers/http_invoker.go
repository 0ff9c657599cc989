package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// maxErrorBodyBytes bounds how much of an upstream error body is retained.
const maxErrorBodyBytes = 4096

// CostEstimator computes the post-hoc cost estimate for one attempt from
// request/response sizes. Estimation never blocks dispatch.
type CostEstimator interface {
	Estimate(providerID string, promptChars, completionChars int) float64
}

// HTTPInvokerConfig contains tuning for the underlying HTTP client.
type HTTPInvokerConfig struct {
	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool.
	IdleConnTimeout time.Duration
}

// DefaultHTTPInvokerConfig returns the default HTTP client tuning.
func DefaultHTTPInvokerConfig() HTTPInvokerConfig {
	return HTTPInvokerConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// HTTPInvoker reaches a provider over HTTP+JSON. It performs exactly one
// upstream call per Attempt, applies the descriptor's timeout, and
// classifies the result. It never retries: failover across providers is the
// dispatcher's job.
type HTTPInvoker struct {
	desc       *Descriptor
	credential string
	client     *http.Client
	costs      CostEstimator
	logger     *slog.Logger
}

// completionRequest is the wire format sent upstream.
type completionRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	MaxOutputChars int    `json:"max_output_chars,omitempty"`
}

// completionResponse is the wire format expected from upstream.
type completionResponse struct {
	Output string `json:"output"`
	Model  string `json:"model,omitempty"`
}

// NewHTTPInvoker creates an invoker bound to one provider descriptor.
// The credential is resolved once at construction through the injected
// CredentialSource. The estimator may be nil, in which case attempts carry
// a zero cost estimate.
func NewHTTPInvoker(desc *Descriptor, creds CredentialSource, estimator CostEstimator, cfg HTTPInvokerConfig) (*HTTPInvoker, error) {
	if desc == nil {
		return nil, fmt.Errorf("descriptor cannot be nil")
	}

	credential, err := creds.Lookup(desc.CredentialRef)
	if err != nil {
		return nil, fmt.Errorf("resolving credential for provider %q: %w", desc.ID, err)
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPInvoker{
		desc:       desc,
		credential: credential,
		// The per-attempt deadline is applied through the request context,
		// not http.Client.Timeout, so caller cancellation and attempt
		// timeout share one mechanism.
		client: &http.Client{Transport: transport},
		costs:  estimator,
		logger: slog.Default().With("component", "providers.invoker", "provider", desc.ID),
	}, nil
}

// Descriptor returns the provider descriptor this invoker is bound to.
func (p *HTTPInvoker) Descriptor() *Descriptor {
	return p.desc
}

// Attempt performs one call against the provider and classifies the outcome.
// The returned AttemptResult is never nil and Attempt never panics or
// returns an error: all failure information is data.
func (p *HTTPInvoker) Attempt(ctx context.Context, req *Request) *AttemptResult {
	start := time.Now()

	attemptCtx, cancel := context.WithTimeout(ctx, p.desc.Timeout)
	defer cancel()

	resp, statusCode, err := p.call(attemptCtx, req)
	latency := time.Since(start)

	result := &AttemptResult{
		RequestID:  req.ID,
		ProviderID: p.desc.ID,
		Latency:    latency,
		StatusCode: statusCode,
		StartedAt:  start,
	}

	switch {
	case err == nil:
		result.Outcome = OutcomeSuccess
		result.Response = resp
		if p.costs != nil {
			result.EstimatedCost = p.costs.Estimate(p.desc.ID, resp.PromptChars, resp.CompletionChars)
		}

	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		// The attempt deadline fired, not the caller's.
		result.Outcome = OutcomeTimeout
		result.Err = &TimeoutError{Provider: p.desc.ID, Timeout: p.desc.Timeout}

	default:
		result.Outcome = classify(statusCode, err)
		result.Err = err
	}

	if result.Outcome.Failed() {
		p.logger.Warn("attempt failed",
			"request_id", req.ID,
			"outcome", string(result.Outcome),
			"status", statusCode,
			"latency", latency,
			"error", result.Err,
		)
	} else {
		p.logger.Debug("attempt succeeded",
			"request_id", req.ID,
			"latency", latency,
			"completion_chars", resp.CompletionChars,
		)
	}

	return result
}

// call performs the upstream HTTP exchange and parses the response.
func (p *HTTPInvoker) call(ctx context.Context, req *Request) (*Response, int, error) {
	body, err := json.Marshal(completionRequest{
		Model:          p.desc.Model,
		Input:          req.Payload,
		MaxOutputChars: req.MaxOutputChars,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := p.desc.BaseURL + p.desc.CompletionPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.credential)
	if req.ID != "" {
		httpReq.Header.Set("X-Request-ID", req.ID)
	}

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		return nil, 0, fmt.Errorf("provider %q request failed: %w", p.desc.ID, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		errBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBodyBytes))
		return nil, httpResp.StatusCode, upstreamError(p.desc.ID, httpResp, string(errBody))
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, httpResp.StatusCode, &ParseError{
			Provider: p.desc.ID,
			Cause:    fmt.Errorf("failed to read response: %w", err),
		}
	}

	var wire completionResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, httpResp.StatusCode, &ParseError{
			Provider:    p.desc.ID,
			RawResponse: truncate(string(respBody), maxErrorBodyBytes),
			Cause:       err,
		}
	}
	if wire.Output == "" {
		return nil, httpResp.StatusCode, &ParseError{
			Provider:    p.desc.ID,
			RawResponse: truncate(string(respBody), maxErrorBodyBytes),
			Cause:       fmt.Errorf("response missing output field"),
		}
	}

	model := wire.Model
	if model == "" {
		model = p.desc.Model
	}

	return &Response{
		Content:         wire.Output,
		Model:           model,
		PromptChars:     len(req.Payload),
		CompletionChars: len(wire.Output),
	}, httpResp.StatusCode, nil
}

// Close releases idle HTTP connections.
func (p *HTTPInvoker) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// upstreamError builds the typed error for a non-2xx upstream status.
func upstreamError(provider string, resp *http.Response, body string) error {
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return &RateLimitError{
			Provider:   provider,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    body,
		}
	default:
		return &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Message:    body,
		}
	}
}

// classify maps a failed exchange to an attempt outcome.
//
// Rate limits, server errors, network errors and malformed responses are
// transient: a different provider may serve the same request. Client errors
// (other than 408/429) are permanent for this provider, though the
// dispatcher still fails over since another provider may accept the input.
func classify(statusCode int, err error) Outcome {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return OutcomeTransientFailure
	}

	switch {
	case statusCode == http.StatusTooManyRequests,
		statusCode == http.StatusRequestTimeout,
		statusCode >= 500:
		return OutcomeTransientFailure
	case statusCode >= 400:
		return OutcomePermanentFailure
	default:
		// Network-level failure with no status.
		return OutcomeTransientFailure
	}
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}

// truncate shortens s to at most n bytes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
