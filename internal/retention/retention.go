// Package retention removes old usage samples on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Config contains configuration for the retention scheduler.
type Config struct {
	// RetentionDays is the number of days of usage samples to keep.
	// 0 means keep samples forever.
	RetentionDays int

	// Schedule is a standard cron expression, e.g. "0 3 * * *" (daily at
	// 3 AM). Empty disables scheduled pruning.
	Schedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() Config {
	return Config{RetentionDays: 90, Schedule: "0 3 * * *"}
}

// SamplePruner deletes usage samples older than a given age.
type SamplePruner interface {
	PruneSamples(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Scheduler runs a SamplePruner at scheduled intervals.
type Scheduler struct {
	pruner  SamplePruner
	config  Config
	cron    *cron.Cron
	mu      sync.Mutex
	logger  *slog.Logger
	running bool
	stop    chan struct{} // closed by Stop
	done    chan struct{} // closed when the watcher of Start returns
}

// NewScheduler creates a new retention scheduler. A nil logger selects
// slog.Default().
func NewScheduler(pruner SamplePruner, config Config, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pruner: pruner,
		config: config,
		cron:   cron.New(),
		logger: logger.With("component", "retention.scheduler"),
	}
}

// RunOnce prunes immediately and returns the number of samples removed.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	if s.config.RetentionDays <= 0 {
		return 0, nil
	}
	age := time.Duration(s.config.RetentionDays) * 24 * time.Hour
	n, err := s.pruner.PruneSamples(ctx, age)
	if err != nil {
		return 0, fmt.Errorf("pruning samples older than %d days: %w", s.config.RetentionDays, err)
	}
	return n, nil
}

// Start schedules pruning until ctx is done or Stop is called. If the
// schedule or the retention is unset, the scheduler does nothing.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" || s.config.RetentionDays <= 0 {
		s.logger.Info("retention not configured, skipping scheduler")
		return nil
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
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	s.logger.Info("retention scheduler started",
		"schedule", s.config.Schedule,
		"retention_days", s.config.RetentionDays,
	)

	go func(stop, done chan struct{}) {
		defer close(done)
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stop:
		}
	}(s.stop, s.done)

	return nil
}

func (s *Scheduler) runPruning(ctx context.Context) {
	s.logger.Info("starting scheduled sample pruning")

	deleted, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("scheduled pruning failed", "error", err)
		return
	}

	if deleted > 0 {
		s.logger.Info("scheduled pruning completed", "deleted_count", deleted)
	} else {
		s.logger.Debug("scheduled pruning completed, no samples deleted")
	}
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		close(s.stop)
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("retention scheduler stopped")
	}
}

// IsRunning reports whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.running
}

// NextRun returns the next scheduled pruning time, or nil when nothing is
// scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}
