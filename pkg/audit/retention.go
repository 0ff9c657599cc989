package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig controls automatic pruning of audit records.
type RetentionConfig struct {
	// Days is how long records are kept. Default: 30.
	Days int

	// Schedule is a standard cron expression for when pruning runs
	// (e.g., "0 3 * * *" for daily at 3 AM). Empty disables scheduling.
	Schedule string

	// MaxRecords additionally caps the table size; 0 means unbounded.
	MaxRecords int64
}

// DefaultRetentionConfig returns the default retention settings.
func DefaultRetentionConfig() RetentionConfig {
	return RetentionConfig{
		Days:     30,
		Schedule: "0 3 * * *",
	}
}

// Scheduler runs retention pruning on a cron schedule.
type Scheduler struct {
	store  Store
	config RetentionConfig
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler creates a retention scheduler over the given store.
func NewScheduler(store Store, config RetentionConfig) *Scheduler {
	if config.Days <= 0 {
		config.Days = DefaultRetentionConfig().Days
	}

	return &Scheduler{
		store:  store,
		config: config,
		cron:   cron.New(),
		logger: slog.Default().With("component", "audit.retention"),
	}
}

// Start schedules pruning. With an empty schedule it does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" {
		s.logger.Info("retention schedule not configured, skipping scheduler")
		return nil
	}
	if s.running {
		return fmt.Errorf("retention scheduler already running")
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.config.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.runPruning(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("retention scheduler started",
		"schedule", s.config.Schedule,
		"retention_days", s.config.Days,
		"max_records", s.config.MaxRecords,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

// runPruning executes one pruning pass.
func (s *Scheduler) runPruning(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -s.config.Days)

	deleted, err := s.store.Prune(ctx, cutoff, s.config.MaxRecords)
	if err != nil {
		s.logger.Error("retention pruning failed", "error", err)
		return
	}

	s.logger.Info("retention pruning complete",
		"deleted", deleted,
		"cutoff", cutoff,
	)
}

// Stop stops the scheduler, waiting for an in-flight pruning run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.running = false

	s.logger.Info("retention scheduler stopped")
}
