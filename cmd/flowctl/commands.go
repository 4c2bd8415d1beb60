package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowguard/flowguard/internal/database"
	"github.com/flowguard/flowguard/internal/flows"
	"github.com/flowguard/flowguard/internal/inference"
	"github.com/flowguard/flowguard/internal/models"
	"github.com/flowguard/flowguard/internal/services"
)

type appFunc func() *app

type analyzeOptions struct {
	modelID     uint
	dryRun      bool
	probability float64
}

func newAnalyzeCmd(root *rootOptions, get appFunc) *cobra.Command {
	o := analyzeOptions{}
	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze flows from a JSON, CSV or pcap file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(commandContext(cmd), get(), root.tenant, args[0], o)
		},
	}
	cmd.Flags().UintVar(&o.modelID, "model", 0, "model to score with (default: the active model)")
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "score every flow with a fixed probability against a throwaway store")
	cmd.Flags().Float64Var(&o.probability, "probability", 0.95, "anomaly probability used by --dry-run")
	return cmd
}

func runAnalyze(ctx context.Context, a *app, tenant uint, path string, o analyzeOptions) error {
	records, err := flows.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read flows: %w", err)
	}
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("flow %d: %w", i, err)
		}
	}

	if o.dryRun {
		if o.probability < 0 || o.probability > 1 {
			return fmt.Errorf("--probability must be within [0, 1]")
		}
		db, err := database.Connect("file::memory:")
		if err != nil {
			return fmt.Errorf("open dry-run store: %w", err)
		}
		defer func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		}()
		verdict := inference.VerdictNormal
		if o.probability > 0.5 {
			verdict = inference.VerdictAnomaly
		}
		dry := newApp(db, a.cfg, a.out)
		results := dry.analysis(inference.FixedScorer(verdict, o.probability)).
			AnalyzeTrafficBatch(ctx, tenant, records, services.ModelRef{Path: "dry-run"})
		return a.printJSON(results)
	}

	var m *models.Model
	if o.modelID != 0 {
		m, err = a.registry.Get(ctx, tenant, o.modelID)
	} else {
		m, err = a.registry.GetActive(ctx, tenant)
	}
	if err != nil {
		return err
	}
	results := a.analysis(a.engine()).AnalyzeTrafficBatch(ctx, tenant, records, services.RefFor(m))
	return a.printJSON(results)
}

func newTrainCmd(root *rootOptions, get appFunc) *cobra.Command {
	req := services.TrainingRequest{}
	var algorithm string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a new model on a registered dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Algorithm = models.Algorithm(algorithm)
			a := get()
			training := services.NewTrainingService(a.engine(), a.registry, a.experiments, a.datasets, a.cfg.Engine.ModelDir)
			run, err := training.Train(commandContext(cmd), root.tenant, req)
			if run != nil {
				if perr := a.printJSON(run); perr != nil {
					return perr
				}
			}
			return err
		},
	}
	cmd.Flags().UintVar(&req.DatasetID, "dataset", 0, "dataset id")
	cmd.Flags().StringVar(&req.Name, "name", "", "model name")
	cmd.Flags().StringVar(&req.Description, "description", "", "model description")
	cmd.Flags().StringVar(&algorithm, "algorithm", string(models.AlgorithmRandomForest), "learning algorithm")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newActivateCmd(root *rootOptions, get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "activate <model-id>",
		Short: "Make a model the tenant's active detector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid model id %q", args[0])
			}
			a := get()
			m, err := a.registry.Activate(commandContext(cmd), root.tenant, uint(id))
			if err != nil {
				return err
			}
			return a.printJSON(m)
		},
	}
}

func newStatsCmd(root *rootOptions, get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show unresolved alert statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := get()
			stats, err := a.stats.GenerateStatistics(commandContext(cmd), root.tenant)
			if err != nil {
				return err
			}
			return a.printJSON(stats)
		},
	}
}

func newPatternsCmd(root *rootOptions, get appFunc) *cobra.Command {
	var window time.Duration
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Summarize traffic over a trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			if window <= 0 {
				return fmt.Errorf("--window must be positive")
			}
			a := get()
			p, err := a.stats.AnalyzeTrafficPatterns(commandContext(cmd), root.tenant, window)
			if err != nil {
				return err
			}
			return a.printJSON(p)
		},
	}
	cmd.Flags().DurationVar(&window, "window", services.DefaultPatternWindow, "trailing window")
	return cmd
}
