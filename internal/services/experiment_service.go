package services

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/models"
)

// ExperimentService owns experiment records and their status machine.
type ExperimentService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewExperimentService(db *gorm.DB) *ExperimentService {
	return &ExperimentService{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Create stores a new experiment in PENDING.
func (s *ExperimentService) Create(ctx context.Context, e *models.Experiment) error {
	if e.TenantID == 0 {
		return invalid("tenant is required")
	}
	e.ID = 0
	e.Status = models.ExperimentPending
	e.Result = nil
	e.StartedAt = nil
	e.CompletedAt = nil
	return persistErr("create experiment", s.db.WithContext(ctx).Create(e).Error)
}

func (s *ExperimentService) List(ctx context.Context, tenantID uint) ([]models.Experiment, error) {
	var list []models.Experiment
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at desc, id desc").Find(&list).Error; err != nil {
		return nil, persistErr("list experiments", err)
	}
	return list, nil
}

func (s *ExperimentService) ListByModel(ctx context.Context, tenantID, modelID uint) ([]models.Experiment, error) {
	var list []models.Experiment
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND model_id = ?", tenantID, modelID).
		Order("created_at desc, id desc").
		Find(&list).Error
	if err != nil {
		return nil, persistErr("list experiments", err)
	}
	return list, nil
}

func (s *ExperimentService) Get(ctx context.Context, tenantID, id uint) (*models.Experiment, error) {
	var e models.Experiment
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&e).Error; err != nil {
		return nil, notFound(err, ErrExperimentNotFound, "get experiment")
	}
	return &e, nil
}

// Start moves PENDING to RUNNING.
func (s *ExperimentService) Start(ctx context.Context, tenantID, id uint) error {
	now := s.now()
	return s.transition(ctx, tenantID, id, models.ExperimentPending, models.ExperimentRunning,
		[]string{"status", "started_at"},
		models.Experiment{Status: models.ExperimentRunning, StartedAt: &now})
}

// Complete moves RUNNING to COMPLETED and writes the result bundle.
func (s *ExperimentService) Complete(ctx context.Context, tenantID, id uint, result *models.ExperimentResult, trainingSeconds int) error {
	if result == nil {
		return invalid("result is required to complete an experiment")
	}
	if err := result.Metrics.Validate(); err != nil {
		return invalid("%v", err)
	}
	now := s.now()
	return s.transition(ctx, tenantID, id, models.ExperimentRunning, models.ExperimentCompleted,
		[]string{"status", "result", "training_seconds", "completed_at"},
		models.Experiment{Status: models.ExperimentCompleted, Result: result, TrainingSeconds: trainingSeconds, CompletedAt: &now})
}

// Fail moves RUNNING to FAILED with a reason.
func (s *ExperimentService) Fail(ctx context.Context, tenantID, id uint, reason string) error {
	now := s.now()
	return s.transition(ctx, tenantID, id, models.ExperimentRunning, models.ExperimentFailed,
		[]string{"status", "error", "completed_at"},
		models.Experiment{Status: models.ExperimentFailed, Error: reason, CompletedAt: &now})
}

// transition applies a conditional update so concurrent writers cannot both move
// the same experiment out of `from`.
func (s *ExperimentService) transition(ctx context.Context, tenantID, id uint, from, to models.ExperimentStatus, cols []string, values models.Experiment) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	res := s.db.WithContext(ctx).Model(&models.Experiment{}).
		Where("id = ? AND tenant_id = ? AND status = ?", id, tenantID, from).
		Select(cols).
		Updates(&values)
	if res.Error != nil {
		return persistErr("update experiment", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	current, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
}

// FailStale fails RUNNING experiments of a tenant that started before cutoff.
func (s *ExperimentService) FailStale(ctx context.Context, tenantID uint, cutoff time.Time) (int64, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Experiment{}).
		Where("tenant_id = ? AND status = ? AND started_at < ?", tenantID, models.ExperimentRunning, cutoff).
		Select("status", "error", "completed_at").
		Updates(&models.Experiment{
			Status:      models.ExperimentFailed,
			Error:       "experiment exceeded its deadline",
			CompletedAt: &now,
		})
	if res.Error != nil {
		return 0, persistErr("fail stale experiments", res.Error)
	}
	return res.RowsAffected, nil
}

// Tenants lists tenants with experiments still RUNNING.
func (s *ExperimentService) Tenants(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.Experiment{}).
		Where("status = ?", models.ExperimentRunning).
		Distinct().
		Pluck("tenant_id", &ids).Error
	if err != nil {
		return nil, persistErr("list experiment tenants", err)
	}
	return ids, nil
}
