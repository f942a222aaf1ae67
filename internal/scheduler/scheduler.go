package scheduler

import (
	"context"

	"subhub/internal/services"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs the periodic reconciliation sweep
type Scheduler struct {
	cron       *cron.Cron
	reconciler *services.Reconciler
	log        *zap.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler(reconciler *services.Reconciler, log *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		reconciler: reconciler,
		log:        log,
	}
}

// Start schedules the sweep with the given cron expression
func (s *Scheduler) Start(checkInterval string) error {
	_, err := s.cron.AddFunc(checkInterval, func() {
		s.log.Debug("starting reconciliation sweep")
		if err := s.reconciler.Sweep(context.Background()); err != nil {
			s.log.Error("reconciliation sweep failed", zap.Error(err))
			return
		}
		s.log.Debug("reconciliation sweep completed")
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("reconciler scheduled", zap.String("interval", checkInterval))
	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.log.Info("scheduler stopped")
}
