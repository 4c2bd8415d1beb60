package models

import (
	"fmt"
	"math"
	"time"
)

// Algorithm names the learning algorithm behind a model.
type Algorithm string

const (
	AlgorithmRandomForest     Algorithm = "RANDOM_FOREST"
	AlgorithmSVM              Algorithm = "SVM"
	AlgorithmNeuralNetwork    Algorithm = "NEURAL_NETWORK"
	AlgorithmGradientBoosting Algorithm = "GRADIENT_BOOSTING"
	AlgorithmKNN              Algorithm = "KNN"
	AlgorithmDecisionTree     Algorithm = "DECISION_TREE"
	AlgorithmEnsemble         Algorithm = "ENSEMBLE"
)

var engineNames = map[Algorithm]string{
	AlgorithmRandomForest:     "random_forest",
	AlgorithmSVM:              "svm",
	AlgorithmNeuralNetwork:    "neural_network",
	AlgorithmGradientBoosting: "gradient_boosting",
	AlgorithmKNN:              "knn",
	AlgorithmDecisionTree:     "decision_tree",
	AlgorithmEnsemble:         "ensemble",
}

func (a Algorithm) Valid() bool {
	_, ok := engineNames[a]
	return ok
}

// EngineName is the identifier the inference engine expects on its command line.
func (a Algorithm) EngineName() string { return engineNames[a] }

// ModelMetrics holds optional evaluation scores, each in [0, 1] when present.
type ModelMetrics struct {
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Precision *float64 `json:"precision,omitempty"`
	Recall    *float64 `json:"recall,omitempty"`
	F1Score   *float64 `json:"f1_score,omitempty"`
	AUC       *float64 `json:"auc,omitempty"`
}

// Validate rejects metrics outside [0, 1].
func (m ModelMetrics) Validate() error {
	fields := []struct {
		name string
		v    *float64
	}{
		{"accuracy", m.Accuracy},
		{"precision", m.Precision},
		{"recall", m.Recall},
		{"f1_score", m.F1Score},
		{"auc", m.AUC},
	}
	for _, f := range fields {
		if f.v == nil {
			continue
		}
		if math.IsNaN(*f.v) || *f.v < 0 || *f.v > 1 {
			return fmt.Errorf("metric %s out of range: %v", f.name, *f.v)
		}
	}
	return nil
}

// Model is a trained detector artifact registered for a tenant.
// At most one model per tenant is active; the partial unique index enforces it in the store.
type Model struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	TenantID        uint           `json:"tenant_id" gorm:"not null;index;uniqueIndex:idx_models_active_tenant,where:active = true"`
	DatasetID       *uint          `json:"dataset_id,omitempty" gorm:"index"`
	Name            string         `json:"name" gorm:"not null"`
	Description     string         `json:"description"`
	Algorithm       Algorithm      `json:"algorithm"`
	ArtifactPath    string         `json:"artifact_path"`
	Hyperparameters map[string]any `json:"hyperparameters,omitempty" gorm:"serializer:json"`
	Metrics         ModelMetrics   `json:"metrics" gorm:"embedded"`
	TrainingSeconds int            `json:"training_seconds"`
	Active          bool           `json:"active" gorm:"index"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}
