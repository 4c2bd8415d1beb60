package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/cache"
	"github.com/flowguard/flowguard/internal/config"
	"github.com/flowguard/flowguard/internal/database"
	"github.com/flowguard/flowguard/internal/inference"
	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/services"
	"github.com/flowguard/flowguard/internal/version"
)

type rootOptions struct {
	tenant  uint
	verbose bool
}

// app holds the services a command works with.
type app struct {
	db            *gorm.DB
	cfg           config.Config
	stats         *services.StatisticsService
	registry      *services.ModelService
	experiments   *services.ExperimentService
	datasets      *services.DatasetService
	notifications *services.NotificationService
	out           io.Writer
}

func newApp(db *gorm.DB, cfg config.Config, out io.Writer) *app {
	return &app{
		db:            db,
		cfg:           cfg,
		stats:         services.NewStatisticsService(db, cache.NoopProvider{}, 0, cfg.Cache.Prefix),
		registry:      services.NewModelService(db),
		experiments:   services.NewExperimentService(db),
		datasets:      services.NewDatasetService(db),
		notifications: services.NewNotificationService(db),
		out:           out,
	}
}

// engine returns the guarded process scorer configured for this host.
func (a *app) engine() inference.Scorer {
	process := inference.NewProcessScorer(a.cfg.Engine.Command, a.cfg.Engine.Args...)
	if a.cfg.Engine.PredictTimeout > 0 {
		process.PredictTimeout = a.cfg.Engine.PredictTimeout
	}
	if a.cfg.Engine.TrainTimeout > 0 {
		process.TrainTimeout = a.cfg.Engine.TrainTimeout
	}
	return inference.NewGuardedScorer(process, inference.GuardOptions{
		RatePerSecond:          a.cfg.Engine.RatePerSecond,
		Burst:                  a.cfg.Engine.Burst,
		MaxConsecutiveFailures: a.cfg.Engine.BreakerFailures,
		OpenTimeout:            a.cfg.Engine.BreakerOpenTimeout,
	})
}

func (a *app) analysis(scorer inference.Scorer) *services.AnalysisService {
	return services.NewAnalysisService(a.db, scorer, a.notifications, a.registry, a.stats, services.AnalysisOptions{
		BatchWorkers: a.cfg.Pipeline.BatchWorkers,
		StoreTimeout: a.cfg.Pipeline.StoreTimeout,
	})
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	var current *app

	cmd := &cobra.Command{
		Use:           "flowctl",
		Short:         "Analyze network flows and manage detection models",
		Version:       version.Full(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger.Init(opts.verbose, os.Stderr)
			if opts.tenant == 0 {
				return fmt.Errorf("--tenant must be positive")
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			db, err := database.Open(cfg.Database.Driver, cfg.Database.Target())
			if err != nil {
				return fmt.Errorf("connect database: %w", err)
			}
			current = newApp(db, cfg, cmd.OutOrStdout())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if current == nil {
				return
			}
			if sqlDB, err := current.db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		},
	}
	cmd.PersistentFlags().UintVar(&opts.tenant, "tenant", 1, "tenant the command acts for")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	get := func() *app { return current }
	cmd.AddCommand(
		newAnalyzeCmd(opts, get),
		newTrainCmd(opts, get),
		newActivateCmd(opts, get),
		newStatsCmd(opts, get),
		newPatternsCmd(opts, get),
		newSeedCmd(opts, get),
	)
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
