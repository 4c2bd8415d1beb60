// Package scheduler runs the periodic housekeeping jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/flowguard/flowguard/internal/config"
	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/metrics"
	"github.com/flowguard/flowguard/internal/services"
)

const jobTimeout = time.Minute

type Scheduler struct {
	Cron *cron.Cron

	cfg         config.SchedulerConfig
	models      *services.ModelService
	experiments *services.ExperimentService
	stats       *services.StatisticsService
	now         func() time.Time
}

// New registers the pattern snapshot and experiment watchdog jobs. Jobs do
// not run until Start.
func New(cfg config.SchedulerConfig, models *services.ModelService, experiments *services.ExperimentService, stats *services.StatisticsService) (*Scheduler, error) {
	s := &Scheduler{
		Cron:        cron.New(),
		cfg:         cfg,
		models:      models,
		experiments: experiments,
		stats:       stats,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if cfg.PatternSpec != "" {
		if _, err := s.Cron.AddFunc(cfg.PatternSpec, func() { s.run("pattern snapshot", s.SnapshotPatterns) }); err != nil {
			return nil, fmt.Errorf("schedule pattern snapshot %q: %w", cfg.PatternSpec, err)
		}
	}
	if cfg.WatchdogSpec != "" && cfg.ExperimentDeadline > 0 {
		if _, err := s.Cron.AddFunc(cfg.WatchdogSpec, func() { s.run("experiment watchdog", s.FailStaleExperiments) }); err != nil {
			return nil, fmt.Errorf("schedule experiment watchdog %q: %w", cfg.WatchdogSpec, err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() { s.Cron.Start() }

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.Cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Scheduler) run(name string, job func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	start := time.Now()
	if err := job(ctx); err != nil {
		logger.Log().WithField("job", name).WithError(err).Warn("scheduled job failed")
		return
	}
	logger.Log().WithFields(logrus.Fields{"job": name, "elapsed": time.Since(start).String()}).Debug("scheduled job finished")
}

// SnapshotPatterns publishes each tenant's windowed anomaly rate as a gauge.
func (s *Scheduler) SnapshotPatterns(ctx context.Context) error {
	tenants, err := s.models.Tenants(ctx)
	if err != nil {
		return err
	}
	for _, tenantID := range tenants {
		p, err := s.stats.AnalyzeTrafficPatterns(ctx, tenantID, s.cfg.PatternWindow)
		if err != nil {
			logger.WithTenant(tenantID).WithError(err).Warn("traffic pattern snapshot failed")
			continue
		}
		metrics.SetAnomalyRate(tenantID, p.AnomalyRate)
	}
	return nil
}

// FailStaleExperiments fails RUNNING experiments older than the deadline.
func (s *Scheduler) FailStaleExperiments(ctx context.Context) error {
	tenants, err := s.experiments.Tenants(ctx)
	if err != nil {
		return err
	}
	cutoff := s.now().Add(-s.cfg.ExperimentDeadline)
	for _, tenantID := range tenants {
		n, err := s.experiments.FailStale(ctx, tenantID, cutoff)
		if err != nil {
			logger.WithTenant(tenantID).WithError(err).Warn("experiment watchdog failed")
			continue
		}
		if n > 0 {
			logger.WithTenant(tenantID).WithField("count", n).Warn("failed experiments past their deadline")
		}
	}
	return nil
}
