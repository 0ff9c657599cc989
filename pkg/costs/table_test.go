package costs

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTableEstimate(t *testing.T) {
	table := NewTable(map[string]Rate{
		"openai-primary": {PromptPer1K: 0.01, CompletionPer1K: 0.03},
		DefaultRateKey:   {PromptPer1K: 0.005, CompletionPer1K: 0.01},
	})

	tests := []struct {
		name            string
		providerID      string
		promptChars     int
		completionChars int
		want            float64
	}{
		{
			name:            "known provider",
			providerID:      "openai-primary",
			promptChars:     2000,
			completionChars: 1000,
			want:            0.01*2 + 0.03*1,
		},
		{
			name:            "unknown provider falls back to default",
			providerID:      "mystery",
			promptChars:     1000,
			completionChars: 1000,
			want:            0.005 + 0.01,
		},
		{
			name:       "zero completion chars",
			providerID: "openai-primary",
			promptChars: 500,
			want:       0.01 * 0.5,
		},
		{
			name:       "zero everything",
			providerID: "openai-primary",
			want:       0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := table.Estimate(tt.providerID, tt.promptChars, tt.completionChars)
			if !almostEqual(got, tt.want) {
				t.Errorf("Estimate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTableWithoutDefaultEstimatesZero(t *testing.T) {
	table := NewTable(nil)
	if got := table.Estimate("anyone", 1000, 1000); got != 0 {
		t.Errorf("Estimate() = %v, want 0", got)
	}
}

func TestTableUpdate(t *testing.T) {
	table := NewTable(map[string]Rate{
		"p": {PromptPer1K: 0.01, CompletionPer1K: 0.01},
	})

	table.Update(map[string]Rate{
		"p": {PromptPer1K: 0.02, CompletionPer1K: 0.02},
	})

	if got := table.Estimate("p", 1000, 1000); !almostEqual(got, 0.04) {
		t.Errorf("Estimate() after Update = %v, want 0.04", got)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yaml")

	content := `
openai-primary:
  prompt_per_1k: 0.01
  completion_per_1k: 0.03
default:
  prompt_per_1k: 0.002
  completion_per_1k: 0.004
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rates, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if got := rates["openai-primary"]; got.PromptPer1K != 0.01 || got.CompletionPer1K != 0.03 {
		t.Errorf("rates[openai-primary] = %+v", got)
	}
	if got := rates[DefaultRateKey]; got.PromptPer1K != 0.002 {
		t.Errorf("rates[default] = %+v", got)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadFile() on missing file: want error")
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("{not yaml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); err == nil {
		t.Error("LoadFile() on malformed file: want error")
	}
}
