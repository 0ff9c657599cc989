package costs

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultRateKey is the pricing table key used when a provider has no
// explicit entry.
const DefaultRateKey = "default"

// Rate is the price in USD per 1000 characters of prompt and completion
// for one provider.
type Rate struct {
	// PromptPer1K is the cost per 1000 prompt characters.
	PromptPer1K float64 `yaml:"prompt_per_1k"`

	// CompletionPer1K is the cost per 1000 completion characters.
	CompletionPer1K float64 `yaml:"completion_per_1k"`
}

// Table maps provider IDs to rates. It is thread-safe and supports
// hot reload of pricing while attempts are in flight.
type Table struct {
	mu    sync.RWMutex
	rates map[string]Rate
}

// NewTable creates a cost table from the given rates. The map may include a
// DefaultRateKey entry used for providers without explicit pricing. A nil
// map yields a table that estimates every attempt at zero cost.
func NewTable(rates map[string]Rate) *Table {
	if rates == nil {
		rates = make(map[string]Rate)
	}
	return &Table{rates: rates}
}

// Estimate returns the estimated cost in USD for one attempt, given the
// prompt and completion sizes in characters. Unknown providers fall back to
// the default rate, then to zero.
func (t *Table) Estimate(providerID string, promptChars, completionChars int) float64 {
	rate := t.rate(providerID)
	return charCost(promptChars, rate.PromptPer1K) + charCost(completionChars, rate.CompletionPer1K)
}

// Rate returns the effective rate for a provider.
func (t *Table) Rate(providerID string) Rate {
	return t.rate(providerID)
}

func (t *Table) rate(providerID string) Rate {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if rate, ok := t.rates[providerID]; ok {
		return rate
	}
	return t.rates[DefaultRateKey]
}

// Update atomically replaces the pricing table (hot-reload support).
// It is safe to call while the table is in use.
func (t *Table) Update(rates map[string]Rate) {
	if rates == nil {
		rates = make(map[string]Rate)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rates = rates
}

// LoadFile reads a pricing file in YAML format: a mapping of provider ID to
// {prompt_per_1k, completion_per_1k}.
func LoadFile(path string) (map[string]Rate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing file %q: %w", path, err)
	}

	var rates map[string]Rate
	if err := yaml.Unmarshal(data, &rates); err != nil {
		return nil, fmt.Errorf("failed to parse pricing file %q: %w", path, err)
	}

	return rates, nil
}

// charCost calculates the cost for a given number of characters.
// costPer1K is the cost per 1000 characters in USD.
func charCost(chars int, costPer1K float64) float64 {
	if chars <= 0 {
		return 0.0
	}
	return (float64(chars) / 1000.0) * costPer1K
}
