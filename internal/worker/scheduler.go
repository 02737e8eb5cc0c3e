package worker

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/burnwatch/burnwatch/internal/domain/budget"
	"github.com/burnwatch/burnwatch/internal/domain/slo"
	"github.com/burnwatch/burnwatch/internal/pkg/logger"
)

// DefaultTickInterval is used when no interval is configured.
const DefaultTickInterval = 5 * time.Minute

// Pruner trims durable alert history past its retention window.
type Pruner interface {
	PruneHistory()
}

// Scheduler drives the periodic re-evaluation ticks. SLO evaluation and
// budget refresh run on independent cron entries so a slow one cannot
// delay the other.
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger

	sloService  slo.Service
	costService budget.Service
	pruner      Pruner
	interval    time.Duration
}

// NewScheduler creates a new periodic scheduler. The pruner is optional;
// nil skips the history pruning entry.
func NewScheduler(sloService slo.Service, costService budget.Service, pruner Pruner, interval time.Duration, log *logger.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Scheduler{
		cron:        cron.New(),
		logger:      log,
		sloService:  sloService,
		costService: costService,
		pruner:      pruner,
		interval:    interval,
	}
}

// Start registers the tick entries and starts the scheduler.
func (s *Scheduler) Start() error {
	spec := fmt.Sprintf("@every %s", s.interval)

	if _, err := s.cron.AddFunc(spec, s.evaluateSLOs); err != nil {
		return fmt.Errorf("failed to schedule slo evaluation: %w", err)
	}
	if _, err := s.cron.AddFunc(spec, s.refreshBudgets); err != nil {
		return fmt.Errorf("failed to schedule budget refresh: %w", err)
	}
	if s.pruner != nil {
		if _, err := s.cron.AddFunc(spec, s.pruner.PruneHistory); err != nil {
			return fmt.Errorf("failed to schedule history pruning: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Infof("Scheduler started, tick interval %s", s.interval)
	return nil
}

// Stop stops the scheduler and waits for running ticks to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) evaluateSLOs() {
	start := time.Now()
	s.sloService.EvaluateAll()
	s.logger.Debugf("Periodic SLO evaluation finished in %s", time.Since(start))
}

func (s *Scheduler) refreshBudgets() {
	start := time.Now()
	s.costService.RefreshAll()
	s.logger.Debugf("Periodic budget refresh finished in %s", time.Since(start))
}
