package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowguard/flowguard/internal/inference"
	"github.com/flowguard/flowguard/internal/models"
	"github.com/flowguard/flowguard/internal/services"
)

func newSeedCmd(root *rootOptions, get appFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Populate a development database with a demo model and traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := runSeed(commandContext(cmd), get(), root.tenant)
			if err != nil {
				return err
			}
			return get().printJSON(summary)
		},
	}
}

type seedSummary struct {
	ModelID uint `json:"model_id"`
	Flows   int  `json:"flows"`
	Alerts  int  `json:"alerts"`
}

var demoFlows = []models.FlowRecord{
	{SourceIP: "192.168.1.20", DestinationIP: "93.184.216.34", SourcePort: 51514, DestinationPort: 443, Protocol: "TCP", Duration: 12.4, BytesSent: 5120, BytesReceived: 48200},
	{SourceIP: "192.168.1.21", DestinationIP: "1.1.1.1", SourcePort: 53000, DestinationPort: 53, Protocol: "UDP", Duration: 0.02, BytesSent: 74, BytesReceived: 190},
	{SourceIP: "203.0.113.7", DestinationIP: "10.0.0.5", SourcePort: 40000, DestinationPort: 80, Protocol: "TCP", Duration: 2, BytesSent: 900000, BytesReceived: 200000},
	{SourceIP: "198.51.100.23", DestinationIP: "2001:db8::5", SourcePort: 41822, DestinationPort: 22, Protocol: "UDP", Duration: 0.8, BytesSent: 420, BytesReceived: 0},
	{SourceIP: "198.51.100.40", DestinationIP: "2001:db8::7", SourcePort: 39001, DestinationPort: 3306, Protocol: "TCP", Duration: 4.5, BytesSent: 64000, BytesReceived: 1200},
}

// demoScores are keyed by source address; flows absent from the map are normal.
var demoScores = map[string]float64{
	"203.0.113.7":   0.97,
	"198.51.100.23": 0.82,
	"198.51.100.40": 0.66,
}

func demoScorer() *inference.StaticScorer {
	return &inference.StaticScorer{
		PredictFn: func(_ context.Context, _ string, f models.FeatureMap) (inference.Result, error) {
			v, _ := f.Get("sourceIP")
			src, _ := v.Text()
			if p, ok := demoScores[src]; ok {
				return inference.Result{Prediction: inference.VerdictAnomaly, Probability: p}, nil
			}
			return inference.Result{Prediction: inference.VerdictNormal, Probability: 0.05}, nil
		},
	}
}

// runSeed registers a demo model, activates it when the tenant has none and
// pushes the demo flows through the pipeline.
func runSeed(ctx context.Context, a *app, tenant uint) (*seedSummary, error) {
	accuracy, f1 := 0.97, 0.95
	m := &models.Model{
		TenantID:     tenant,
		Name:         "demo-random-forest",
		Description:  "Seeded demo model",
		Algorithm:    models.AlgorithmRandomForest,
		ArtifactPath: "demo/random_forest.pkl",
		Metrics:      models.ModelMetrics{Accuracy: &accuracy, F1Score: &f1},
	}
	if err := a.registry.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("seed model: %w", err)
	}
	if _, err := a.registry.GetActive(ctx, tenant); errors.Is(err, services.ErrNoActiveModel) {
		if _, err := a.registry.Activate(ctx, tenant, m.ID); err != nil {
			return nil, fmt.Errorf("activate demo model: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	summary := &seedSummary{ModelID: m.ID, Flows: len(demoFlows)}
	for _, res := range a.analysis(demoScorer()).AnalyzeTrafficBatch(ctx, tenant, demoFlows, services.RefFor(m)) {
		if res.Error != "" {
			return nil, fmt.Errorf("seed flow: %s", res.Error)
		}
		if res.AlertID != 0 {
			summary.Alerts++
		}
	}
	return summary, nil
}
