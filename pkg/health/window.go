package health

import "time"

// sample is one recorded attempt outcome.
type sample struct {
	success bool
	latency time.Duration
}

// window is a fixed-size ring buffer of the most recent attempt outcomes.
// It is not safe for concurrent use; the owning Tracker serializes access.
type window struct {
	samples []sample
	next    int
	filled  bool
}

// newWindow creates a ring buffer holding up to size samples.
func newWindow(size int) *window {
	if size <= 0 {
		size = 1
	}
	return &window{samples: make([]sample, size)}
}

// push records one outcome, evicting the oldest once the buffer is full.
func (w *window) push(success bool, latency time.Duration) {
	w.samples[w.next] = sample{success: success, latency: latency}
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}
}

// size returns the number of recorded samples, at most the buffer capacity.
func (w *window) size() int {
	if w.filled {
		return len(w.samples)
	}
	return w.next
}

// failureRate returns the fraction of recorded samples that failed.
// An empty window reports 0.
func (w *window) failureRate() float64 {
	n := w.size()
	if n == 0 {
		return 0
	}

	failures := 0
	for i := 0; i < n; i++ {
		if !w.samples[i].success {
			failures++
		}
	}
	return float64(failures) / float64(n)
}

// avgLatency returns the mean latency across recorded samples.
// An empty window reports 0.
func (w *window) avgLatency() time.Duration {
	n := w.size()
	if n == 0 {
		return 0
	}

	var total time.Duration
	for i := 0; i < n; i++ {
		total += w.samples[i].latency
	}
	return total / time.Duration(n)
}
