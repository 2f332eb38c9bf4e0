// Package scheduler runs periodic maintenance of the job store.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

const defaultInterval = 15 * time.Minute

// Pruner drops expired job results and reports how many were removed.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

// Scheduler periodically prunes the job store.
type Scheduler struct {
	scheduler *gocron.Scheduler
	pruner    Pruner
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a Scheduler. A non-positive interval falls back to 15 minutes.
func New(pruner Pruner, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		pruner:    pruner,
		interval:  interval,
		timeout:   30 * time.Second,
		logger:    logger,
	}
}

// Start schedules the prune job and starts the underlying scheduler. The
// first prune runs immediately.
func (s *Scheduler) Start() error {
	_, err := s.scheduler.Every(s.interval).Do(s.run)
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.logger.Info("store prune scheduled", "interval", s.interval)
	return nil
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Error("store prune failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("pruned expired job results", "count", n)
	}
}
