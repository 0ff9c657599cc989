package health

import (
	"testing"
	"time"
)

func TestWindowFailureRate(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		outcomes []bool
		want     float64
	}{
		{
			name:     "empty window",
			capacity: 5,
			outcomes: nil,
			want:     0,
		},
		{
			name:     "all successes",
			capacity: 5,
			outcomes: []bool{true, true, true},
			want:     0,
		},
		{
			name:     "all failures",
			capacity: 5,
			outcomes: []bool{false, false},
			want:     1,
		},
		{
			name:     "mixed outcomes",
			capacity: 4,
			outcomes: []bool{true, false, true, false},
			want:     0.5,
		},
		{
			name:     "old outcomes evicted",
			capacity: 2,
			outcomes: []bool{false, false, true, true},
			want:     0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newWindow(tt.capacity)
			for _, success := range tt.outcomes {
				w.push(success, time.Millisecond)
			}
			if got := w.failureRate(); got != tt.want {
				t.Errorf("failureRate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindowSizeCapped(t *testing.T) {
	w := newWindow(3)
	for i := 0; i < 10; i++ {
		w.push(true, time.Millisecond)
	}
	if got := w.size(); got != 3 {
		t.Errorf("size() = %d, want 3", got)
	}
}

func TestWindowAvgLatency(t *testing.T) {
	w := newWindow(5)
	if got := w.avgLatency(); got != 0 {
		t.Errorf("avgLatency() on empty window = %v, want 0", got)
	}

	w.push(true, 100*time.Millisecond)
	w.push(false, 300*time.Millisecond)

	if got := w.avgLatency(); got != 200*time.Millisecond {
		t.Errorf("avgLatency() = %v, want 200ms", got)
	}
}
