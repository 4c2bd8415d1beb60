package inference

import (
	"context"
	"errors"
	"time"

	"github.com/flowguard/flowguard/internal/models"
)

var ErrNotConfigured = errors.New("inference: scorer function not configured")

// StaticScorer answers from in-process functions instead of an engine.
// It backs dry runs and tests.
type StaticScorer struct {
	PredictFn func(ctx context.Context, modelPath string, features models.FeatureMap) (Result, error)
	TrainFn   func(ctx context.Context, req TrainRequest) (*TrainingOutcome, error)
}

// FixedScorer always returns the given verdict and probability.
func FixedScorer(verdict Verdict, probability float64) *StaticScorer {
	return &StaticScorer{
		PredictFn: func(context.Context, string, models.FeatureMap) (Result, error) {
			return Result{Prediction: verdict, Probability: probability, Timestamp: time.Now()}, nil
		},
	}
}

func (s *StaticScorer) Predict(ctx context.Context, modelPath string, features models.FeatureMap) (Result, error) {
	if s.PredictFn == nil {
		return Result{}, ErrNotConfigured
	}
	return s.PredictFn(ctx, modelPath, features)
}

func (s *StaticScorer) BatchPredict(ctx context.Context, modelPath string, batch []models.FeatureMap) ([]Result, error) {
	return predictEach(ctx, s.Predict, modelPath, batch), nil
}

func (s *StaticScorer) Train(ctx context.Context, req TrainRequest) (*TrainingOutcome, error) {
	if s.TrainFn == nil {
		return nil, ErrNotConfigured
	}
	return s.TrainFn(ctx, req)
}
