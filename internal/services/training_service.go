package services

import (
	"context"
	"math"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/flowguard/flowguard/internal/inference"
	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/models"
)

// TrainingRequest describes one training run over a stored dataset.
type TrainingRequest struct {
	DatasetID       uint             `json:"dataset_id" binding:"required"`
	Name            string           `json:"name" binding:"required"`
	Description     string           `json:"description"`
	Algorithm       models.Algorithm `json:"algorithm" binding:"required"`
	Hyperparameters map[string]any   `json:"hyperparameters"`
}

// TrainingRun is what a finished run produced. Experiment holds the final status.
type TrainingRun struct {
	Model      *models.Model      `json:"model"`
	Experiment *models.Experiment `json:"experiment"`
}

// TrainingService drives the engine's train command and records the outcome
// as an inactive model plus an experiment.
type TrainingService struct {
	scorer      inference.Scorer
	registry    *ModelService
	experiments *ExperimentService
	datasets    *DatasetService
	modelDir    string
}

func NewTrainingService(scorer inference.Scorer, registry *ModelService, experiments *ExperimentService, datasets *DatasetService, modelDir string) *TrainingService {
	return &TrainingService{
		scorer:      scorer,
		registry:    registry,
		experiments: experiments,
		datasets:    datasets,
		modelDir:    modelDir,
	}
}

// Train runs synchronously. An engine failure is recorded on the experiment
// as FAILED and returned alongside the run.
func (s *TrainingService) Train(ctx context.Context, tenantID uint, req TrainingRequest) (*TrainingRun, error) {
	if !req.Algorithm.Valid() {
		return nil, invalid("unknown algorithm %q", req.Algorithm)
	}
	dataset, err := s.datasets.Get(ctx, tenantID, req.DatasetID)
	if err != nil {
		return nil, err
	}
	if dataset.FilePath == "" {
		return nil, invalid("dataset %d has no file", dataset.ID)
	}

	datasetID := dataset.ID
	model := &models.Model{
		TenantID:        tenantID,
		DatasetID:       &datasetID,
		Name:            req.Name,
		Description:     req.Description,
		Algorithm:       req.Algorithm,
		ArtifactPath:    filepath.Join(s.modelDir, uuid.NewString()+".pkl"),
		Hyperparameters: req.Hyperparameters,
	}
	if err := s.registry.Create(ctx, model); err != nil {
		return nil, err
	}

	exp := &models.Experiment{
		TenantID:        tenantID,
		ModelID:         model.ID,
		DatasetID:       &datasetID,
		Name:            req.Name,
		Description:     req.Description,
		Hyperparameters: req.Hyperparameters,
	}
	if err := s.experiments.Create(ctx, exp); err != nil {
		return nil, err
	}
	if err := s.experiments.Start(ctx, tenantID, exp.ID); err != nil {
		return nil, err
	}

	log := logger.WithFields(logrus.Fields{
		"tenant_id":  tenantID,
		"model_id":   model.ID,
		"experiment": exp.ID,
		"algorithm":  req.Algorithm,
	})
	log.Info("training started")

	outcome, trainErr := s.scorer.Train(ctx, inference.TrainRequest{
		DatasetPath: dataset.FilePath,
		Algorithm:   req.Algorithm.EngineName(),
		OutputPath:  model.ArtifactPath,
	})
	if trainErr != nil {
		log.WithError(trainErr).Warn("training failed")
		s.failRun(ctx, log, tenantID, exp.ID, trainErr)
		return s.reload(ctx, tenantID, model.ID, exp.ID), trainErr
	}

	metrics := outcome.Metrics()
	seconds := int(math.Round(outcome.TrainingTime))
	if err := s.registry.UpdateMetrics(ctx, tenantID, model.ID, metrics, seconds); err != nil {
		s.failRun(ctx, log, tenantID, exp.ID, err)
		return s.reload(ctx, tenantID, model.ID, exp.ID), err
	}
	result := &models.ExperimentResult{
		Metrics:              metrics,
		ConfusionMatrix:      outcome.ConfusionMatrix,
		ClassificationReport: outcome.ClassificationReport,
		TotalRecords:         outcome.TotalRecords,
		TrainingRecords:      outcome.TrainingRecords,
		TestingRecords:       outcome.TestingRecords,
	}
	if err := s.experiments.Complete(ctx, tenantID, exp.ID, result, seconds); err != nil {
		s.failRun(ctx, log, tenantID, exp.ID, err)
		return s.reload(ctx, tenantID, model.ID, exp.ID), err
	}

	if outcome.TotalRecords > 0 {
		err := s.datasets.db.WithContext(ctx).Model(&models.Dataset{}).Where("id = ?", dataset.ID).Updates(map[string]any{
			"total_records":    outcome.TotalRecords,
			"training_records": outcome.TrainingRecords,
			"testing_records":  outcome.TestingRecords,
		}).Error
		if err != nil {
			log.WithError(err).WithField("dataset_id", dataset.ID).Warn("failed to update dataset record counts")
		}
	}

	log.WithField("seconds", seconds).Info("training completed")
	return s.reload(ctx, tenantID, model.ID, exp.ID), nil
}

// failRun marks the experiment FAILED. The caller's context may be gone; the
// failure still has to be recorded.
func (s *TrainingService) failRun(ctx context.Context, log *logrus.Entry, tenantID, expID uint, cause error) {
	if err := s.experiments.Fail(context.WithoutCancel(ctx), tenantID, expID, cause.Error()); err != nil {
		log.WithError(err).Error("failed to record training failure")
	}
}

func (s *TrainingService) reload(ctx context.Context, tenantID, modelID, expID uint) *TrainingRun {
	ctx = context.WithoutCancel(ctx)
	run := &TrainingRun{}
	run.Model, _ = s.registry.Get(ctx, tenantID, modelID)
	run.Experiment, _ = s.experiments.Get(ctx, tenantID, expID)
	return run
}
