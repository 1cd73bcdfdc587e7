/**
 * @description
 * Cron scheduler setup for the service's background jobs: a periodic
 * entitlement refresh (poll fallback for missed push updates) and the
 * month-boundary usage-counter sweep.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/calorietracker/subscription-service/internal/config"
	"github.com/calorietracker/subscription-service/internal/store"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	facade *Facade
	repo   *store.Repository
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(facade *Facade, repo *store.Repository, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:   c,
		facade: facade,
		repo:   repo,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.config.RefreshSchedule, s.refreshEntitlements); err != nil {
		s.logger.Error("failed to schedule entitlement refresh job", "error", err)
	} else {
		s.logger.Info("scheduled entitlement refresh job", "schedule", s.config.RefreshSchedule)
	}

	if _, err := s.cron.AddFunc(s.config.UsageResetSchedule, s.resetStaleUsage); err != nil {
		s.logger.Error("failed to schedule usage reset job", "error", err)
	} else {
		s.logger.Info("scheduled usage reset job", "schedule", s.config.UsageResetSchedule)
	}

	s.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// refreshEntitlements polls the vendor for a fresh snapshot. Skipped while
// the facade has no configured session.
func (s *Scheduler) refreshEntitlements() {
	if s.facade.AppUserID() == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.facade.Refresh(ctx); err != nil {
		s.logger.Warn("scheduled entitlement refresh failed", "error", err)
	}
}

// resetStaleUsage sweeps counters left in a prior month.
func (s *Scheduler) resetStaleUsage() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.repo.ResetAllForNewMonth(ctx)
	if err != nil {
		s.logger.Error("usage reset sweep failed", "error", err)
		return
	}
	s.logger.Info("usage reset sweep complete", "rows", n)
}
