// Package scheduler runs the outgoing message bundler periodically.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/telhawk-systems/edi-stack/common/logging"
	"github.com/telhawk-systems/edi-stack/edi/internal/bundling"
)

// Runner runs one bundling pass.
type Runner interface {
	Run(ctx context.Context) (*bundling.Report, error)
}

// Scheduler runs the bundler on a fixed interval.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   *logging.Logger
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a new bundling scheduler.
func NewScheduler(runner Runner, interval time.Duration, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// Start begins the scheduler loop. This should be called in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	defer close(s.stopped)

	s.logger.InfoContext(ctx, "bundling scheduler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.runOnce(ctx)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.stop:
			s.logger.Info("bundling scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("bundling scheduler context cancelled")
			return
		}
	}
}

// Stop signals the scheduler to stop and waits for it to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.stopped
}

func (s *Scheduler) runOnce(ctx context.Context) {
	report, err := s.runner.Run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.ErrorContext(ctx, "bundling run failed", logging.Error(err))
		}
		return
	}
	if report.Skipped {
		s.logger.DebugContext(ctx, "bundling run skipped, another run holds the lock")
		return
	}
	if report.BundlesCreated > 0 {
		s.logger.InfoContext(ctx, "bundling run completed",
			slog.Int("bundles_created", report.BundlesCreated),
			slog.Int("messages_bundled", report.MessagesBundled),
			slog.Int("messages_deferred", report.MessagesDeferred))
	}
}
