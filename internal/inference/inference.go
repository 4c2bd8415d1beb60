// Package inference bridges the service to the external ML engine that
// scores flows and trains models.
package inference

import (
	"context"
	"time"

	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/models"
	"github.com/sirupsen/logrus"
)

type Verdict string

const (
	VerdictNormal  Verdict = "normal"
	VerdictAnomaly Verdict = "anomaly"
)

// Result is one engine verdict. Probability is the anomaly-class probability.
type Result struct {
	Prediction  Verdict   `json:"prediction"`
	Probability float64   `json:"probability"`
	Timestamp   time.Time `json:"timestamp"`
}

func (r Result) IsAnomaly() bool { return r.Prediction == VerdictAnomaly }

// TrainRequest asks the engine to fit a model on a dataset and write the artifact to OutputPath.
type TrainRequest struct {
	DatasetPath string
	Algorithm   string
	OutputPath  string
}

// TrainingOutcome is the engine's report after a training run.
type TrainingOutcome struct {
	ModelType            string         `json:"model_type"`
	TrainingTime         float64        `json:"training_time"`
	Accuracy             *float64       `json:"accuracy"`
	Precision            *float64       `json:"precision"`
	Recall               *float64       `json:"recall"`
	F1Score              *float64       `json:"f1_score"`
	AUC                  *float64       `json:"auc"`
	ConfusionMatrix      [][]int64      `json:"confusion_matrix"`
	ClassificationReport map[string]any `json:"classification_report"`
	TotalRecords         int            `json:"total_records"`
	TrainingRecords      int            `json:"training_records"`
	TestingRecords       int            `json:"testing_records"`
}

// Metrics returns the evaluation scores as model metrics.
func (o *TrainingOutcome) Metrics() models.ModelMetrics {
	return models.ModelMetrics{
		Accuracy:  o.Accuracy,
		Precision: o.Precision,
		Recall:    o.Recall,
		F1Score:   o.F1Score,
		AUC:       o.AUC,
	}
}

// Scorer scores flows against a model artifact and trains new artifacts.
type Scorer interface {
	Predict(ctx context.Context, modelPath string, features models.FeatureMap) (Result, error)
	BatchPredict(ctx context.Context, modelPath string, batch []models.FeatureMap) ([]Result, error)
	Train(ctx context.Context, req TrainRequest) (*TrainingOutcome, error)
}

type predictFunc func(ctx context.Context, modelPath string, features models.FeatureMap) (Result, error)

// predictEach scores every element independently. A failed element becomes a
// neutral normal verdict so one bad flow never sinks the batch.
func predictEach(ctx context.Context, predict predictFunc, modelPath string, batch []models.FeatureMap) []Result {
	out := make([]Result, len(batch))
	for i, features := range batch {
		res, err := predict(ctx, modelPath, features)
		if err != nil {
			logger.Log().WithFields(logrus.Fields{
				"index": i,
				"kind":  ErrorKind(err),
			}).WithError(err).Warn("batch prediction failed, defaulting to normal")
			res = Result{Prediction: VerdictNormal, Probability: 0, Timestamp: time.Now()}
		}
		out[i] = res
	}
	return out
}
