package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/colmeta/copilot-dispatch/pkg/providers"
)

// RecorderConfig contains configuration for the audit recorder.
type RecorderConfig struct {
	// AsyncBuffer is the size of the async write channel. When the buffer
	// is full, records are dropped rather than blocking a dispatch.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout bounds each storage write. Default: 5 seconds.
	WriteTimeout time.Duration
}

// DefaultRecorderConfig returns the default recorder configuration.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder persists attempt results asynchronously. It satisfies the
// dispatcher's AttemptRecorder contract, but writes happen on a background
// worker so the dispatch hot path never waits on storage.
type Recorder struct {
	store      Store
	config     RecorderConfig
	recordChan chan *Record
	done       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
	dropped    int64
	droppedMu  sync.Mutex
	logger     *slog.Logger
}

// NewRecorder creates a recorder over the given store and starts its
// background writer.
func NewRecorder(store Store, config RecorderConfig) *Recorder {
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultRecorderConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultRecorderConfig().WriteTimeout
	}

	r := &Recorder{
		store:      store,
		config:     config,
		recordChan: make(chan *Record, config.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "audit.recorder"),
	}

	r.wg.Add(1)
	go r.drain()

	return r
}

// RecordAttempt enqueues one attempt result for persistence. It never
// blocks: when the buffer is full the record is dropped and counted.
func (r *Recorder) RecordAttempt(result *providers.AttemptResult) {
	if result == nil {
		return
	}

	record := &Record{
		ID:            uuid.NewString(),
		DispatchID:    result.RequestID,
		ProviderID:    result.ProviderID,
		Outcome:       string(result.Outcome),
		LatencyMS:     result.Latency.Milliseconds(),
		StatusCode:    result.StatusCode,
		EstimatedCost: result.EstimatedCost,
		ErrorDetail:   result.ErrorDetail(),
		CreatedAt:     result.StartedAt,
	}

	select {
	case r.recordChan <- record:
	default:
		r.droppedMu.Lock()
		r.dropped++
		dropped := r.dropped
		r.droppedMu.Unlock()
		r.logger.Warn("audit buffer full, dropping record",
			"dispatch_id", record.DispatchID,
			"dropped_total", dropped,
		)
	}
}

// drain is the background writer loop.
func (r *Recorder) drain() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.write(record)
		case <-r.done:
			// Flush whatever is still buffered.
			for {
				select {
				case record := <-r.recordChan:
					r.write(record)
				default:
					return
				}
			}
		}
	}
}

// write performs one bounded storage write.
func (r *Recorder) write(record *Record) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	if err := r.store.Save(ctx, record); err != nil {
		r.logger.Error("failed to persist audit record",
			"record_id", record.ID,
			"error", err,
		)
	}
}

// Dropped returns the number of records dropped due to a full buffer.
func (r *Recorder) Dropped() int64 {
	r.droppedMu.Lock()
	defer r.droppedMu.Unlock()
	return r.dropped
}

// Close stops the background writer, flushing buffered records first.
// The underlying store is not closed.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
	return nil
}
