package models

import "time"

// ExperimentStatus tracks a training run through its lifecycle.
type ExperimentStatus string

const (
	ExperimentPending   ExperimentStatus = "PENDING"
	ExperimentRunning   ExperimentStatus = "RUNNING"
	ExperimentCompleted ExperimentStatus = "COMPLETED"
	ExperimentFailed    ExperimentStatus = "FAILED"
)

// Terminal reports whether no further transitions are allowed.
func (s ExperimentStatus) Terminal() bool {
	return s == ExperimentCompleted || s == ExperimentFailed
}

// CanTransitionTo enforces PENDING -> RUNNING -> COMPLETED|FAILED.
func (s ExperimentStatus) CanTransitionTo(next ExperimentStatus) bool {
	switch s {
	case ExperimentPending:
		return next == ExperimentRunning
	case ExperimentRunning:
		return next == ExperimentCompleted || next == ExperimentFailed
	default:
		return false
	}
}

type FeatureImportance struct {
	Feature string  `json:"feature"`
	Score   float64 `json:"score"`
}

// ExperimentResult is the bundle written once an experiment completes.
type ExperimentResult struct {
	Metrics              ModelMetrics        `json:"metrics"`
	ConfusionMatrix      [][]int64           `json:"confusion_matrix,omitempty"`
	FeatureImportance    []FeatureImportance `json:"feature_importance,omitempty"`
	ClassificationReport map[string]any      `json:"classification_report,omitempty"`
	TotalRecords         int                 `json:"total_records"`
	TrainingRecords      int                 `json:"training_records"`
	TestingRecords       int                 `json:"testing_records"`
}

type Experiment struct {
	ID              uint              `json:"id" gorm:"primaryKey"`
	TenantID        uint              `json:"tenant_id" gorm:"not null;index"`
	ModelID         uint              `json:"model_id" gorm:"index"`
	DatasetID       *uint             `json:"dataset_id,omitempty" gorm:"index"`
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	Status          ExperimentStatus  `json:"status" gorm:"index"`
	Hyperparameters map[string]any    `json:"hyperparameters,omitempty" gorm:"serializer:json"`
	Result          *ExperimentResult `json:"result,omitempty" gorm:"serializer:json"`
	TrainingSeconds int               `json:"training_seconds"`
	Error           string            `json:"error,omitempty" gorm:"type:text"`
	Notes           string            `json:"notes" gorm:"type:text"`
	StartedAt       *time.Time        `json:"started_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}
