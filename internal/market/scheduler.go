package market

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler refreshes a Service on a cron schedule.
type Scheduler struct {
	service *Service
	cron    *cron.Cron
	timeout time.Duration
	logger  *slog.Logger
}

// NewScheduler creates a scheduler. Each scheduled refresh runs under timeout.
// A refresh still running when the next tick fires makes that tick a no-op.
func NewScheduler(service *Service, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		service: service,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: timeout,
		logger:  logger,
	}
}

// Start parses spec (standard five-field cron, or descriptors such as
// "@every 1h") and starts ticking.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.refresh); err != nil {
		return fmt.Errorf("market: refresh schedule %q: %w", spec, err)
	}
	s.cron.Start()
	s.logger.Info("refresh scheduler started", "schedule", spec)
	return nil
}

// Stop stops the schedule and waits for a running refresh to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("refresh scheduler stopped")
}

func (s *Scheduler) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.logger.Info("scheduled refresh")
	if _, err := s.service.Refresh(ctx); err != nil {
		s.logger.Error("scheduled refresh failed", "error", err)
	}
}
