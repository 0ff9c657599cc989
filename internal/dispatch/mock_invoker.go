// Package dispatch provides test doubles for dispatcher tests.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/colmeta/copilot-dispatch/pkg/providers"
)

// Script is one pre-programmed attempt outcome for a MockInvoker. Outcomes
// are consumed in order; once the script is exhausted the last entry
// repeats.
type Script struct {
	Outcome providers.Outcome
	Latency time.Duration
	Cost    float64
	Content string
	Status  int
	Err     error
}

// MockInvoker is a scriptable implementation of the Invoker interface for
// dispatcher tests. It records every request it receives.
type MockInvoker struct {
	desc   *providers.Descriptor
	script []Script

	mu       sync.Mutex
	calls    int
	requests []*providers.Request
	closed   bool
}

// NewMockInvoker creates a mock invoker for the given provider ID. With an
// empty script every attempt succeeds instantly.
func NewMockInvoker(id string, priority int, script ...Script) *MockInvoker {
	if len(script) == 0 {
		script = []Script{{Outcome: providers.OutcomeSuccess, Content: "mock response"}}
	}
	return &MockInvoker{
		desc: &providers.Descriptor{
			ID:       id,
			Priority: priority,
			Model:    "mock-model",
			Timeout:  5 * time.Second,
		},
		script: script,
	}
}

// SetTimeout overrides the descriptor's per-attempt timeout.
func (m *MockInvoker) SetTimeout(d time.Duration) {
	m.desc.Timeout = d
}

// Descriptor returns the mock's provider descriptor.
func (m *MockInvoker) Descriptor() *providers.Descriptor {
	return m.desc
}

// Attempt returns the next scripted outcome.
func (m *MockInvoker) Attempt(ctx context.Context, req *providers.Request) *providers.AttemptResult {
	m.mu.Lock()
	step := m.script[min(m.calls, len(m.script)-1)]
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	result := &providers.AttemptResult{
		RequestID:     req.ID,
		ProviderID:    m.desc.ID,
		Outcome:       step.Outcome,
		Latency:       step.Latency,
		StatusCode:    step.Status,
		EstimatedCost: step.Cost,
		Err:           step.Err,
		StartedAt:     time.Now(),
	}
	if step.Outcome == providers.OutcomeSuccess {
		result.Response = &providers.Response{
			Content:         step.Content,
			Model:           m.desc.Model,
			PromptChars:     len(req.Payload),
			CompletionChars: len(step.Content),
		}
	}
	return result
}

// Calls returns how many attempts the mock has served.
func (m *MockInvoker) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns the requests received, in order.
func (m *MockInvoker) Requests() []*providers.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*providers.Request(nil), m.requests...)
}

// Closed reports whether Close was called.
func (m *MockInvoker) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Close marks the mock closed.
func (m *MockInvoker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
