package pools

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler runs refresh passes on a cron schedule.
type Scheduler struct {
	cron     *cron.Cron
	registry *Registry
	logger   *zap.Logger
}

func NewScheduler(registry *Registry, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(),
		registry: registry,
		logger:   logger,
	}
}

// Start registers the refresh job and starts the cron loop. schedule is a
// standard five-field cron expression.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		summary := s.registry.RefreshAll(ctx)
		if summary.ChainsFailed > 0 {
			s.logger.Warn("scheduled refresh degraded",
				zap.Int("chains_failed", summary.ChainsFailed),
				zap.Int("chains_scanned", summary.ChainsScanned))
		}
	})
	if err != nil {
		return fmt.Errorf("add refresh job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("refresh scheduler started", zap.String("schedule", schedule))
	return nil
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("refresh scheduler stopped")
}
