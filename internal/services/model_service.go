package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/models"
)

// ModelService is the model registry. It is the only writer of the active flag.
type ModelService struct {
	db    *gorm.DB
	locks sync.Map // tenant id -> *sync.Mutex
}

func NewModelService(db *gorm.DB) *ModelService {
	return &ModelService{db: db}
}

// ModelRef is what the pipeline needs to score against a model.
type ModelRef struct {
	ID   uint
	Path string
}

func RefFor(m *models.Model) ModelRef {
	return ModelRef{ID: m.ID, Path: m.ArtifactPath}
}

func (s *ModelService) tenantLock(tenantID uint) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(tenantID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Create registers a model as inactive; activation goes through Activate.
func (s *ModelService) Create(ctx context.Context, m *models.Model) error {
	if m.TenantID == 0 {
		return invalid("tenant is required")
	}
	if m.Name == "" {
		return invalid("model name is required")
	}
	if !m.Algorithm.Valid() {
		return invalid("unknown algorithm %q", m.Algorithm)
	}
	if err := m.Metrics.Validate(); err != nil {
		return invalid("%v", err)
	}
	m.ID = 0
	m.Active = false
	return persistErr("create model", s.db.WithContext(ctx).Create(m).Error)
}

func (s *ModelService) List(ctx context.Context, tenantID uint) ([]models.Model, error) {
	var list []models.Model
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at desc, id desc").
		Find(&list).Error
	if err != nil {
		return nil, persistErr("list models", err)
	}
	return list, nil
}

func (s *ModelService) Get(ctx context.Context, tenantID, id uint) (*models.Model, error) {
	var m models.Model
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&m).Error; err != nil {
		return nil, notFound(err, ErrModelNotFound, "get model")
	}
	return &m, nil
}

// GetActive returns the tenant's active model or ErrNoActiveModel.
func (s *ModelService) GetActive(ctx context.Context, tenantID uint) (*models.Model, error) {
	var m models.Model
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND active = ?", tenantID, true).First(&m).Error
	if err != nil {
		return nil, notFound(err, ErrNoActiveModel, "get active model")
	}
	return &m, nil
}

// Activate makes modelID the tenant's only active model. The swap runs in a
// single transaction, so readers see either the old or the new active model.
func (s *ModelService) Activate(ctx context.Context, tenantID, modelID uint) (*models.Model, error) {
	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	var activated models.Model
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND tenant_id = ?", modelID, tenantID).First(&activated).Error; err != nil {
			return notFound(err, ErrModelNotFound, "activate model")
		}
		if err := tx.Model(&models.Model{}).
			Where("tenant_id = ? AND active = ? AND id <> ?", tenantID, true, modelID).
			Update("active", false).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Model{}).
			Where("id = ?", modelID).
			Update("active", true).Error; err != nil {
			return err
		}

		var active int64
		if err := tx.Model(&models.Model{}).Where("tenant_id = ? AND active = ?", tenantID, true).Count(&active).Error; err != nil {
			return err
		}
		if active != 1 {
			return &InvariantViolationError{
				Invariant: "single active model",
				Detail:    fmt.Sprintf("tenant %d has %d active models after activation", tenantID, active),
			}
		}
		activated.Active = true
		return nil
	})
	if err != nil {
		return nil, activationErr(err)
	}

	logger.WithFields(logrus.Fields{"tenant_id": tenantID, "model_id": modelID}).Info("model activated")
	return &activated, nil
}

func activationErr(err error) error {
	var inv *InvariantViolationError
	var pe *PersistenceError
	switch {
	case errors.Is(err, ErrModelNotFound), errors.As(err, &inv), errors.As(err, &pe):
		return err
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &InvariantViolationError{Invariant: "single active model", Detail: err.Error()}
	default:
		return persistErr("activate model", err)
	}
}

// Deactivate clears the active flag; the tenant is left with no active model.
func (s *ModelService) Deactivate(ctx context.Context, tenantID, modelID uint) error {
	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	res := s.db.WithContext(ctx).Model(&models.Model{}).
		Where("id = ? AND tenant_id = ?", modelID, tenantID).
		Update("active", false)
	if res.Error != nil {
		return persistErr("deactivate model", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrModelNotFound
	}
	return nil
}

// UpdateMetrics records evaluation results for a model.
func (s *ModelService) UpdateMetrics(ctx context.Context, tenantID, modelID uint, metrics models.ModelMetrics, trainingSeconds int) error {
	if err := metrics.Validate(); err != nil {
		return invalid("%v", err)
	}
	res := s.db.WithContext(ctx).Model(&models.Model{}).
		Where("id = ? AND tenant_id = ?", modelID, tenantID).
		Updates(map[string]any{
			"accuracy":         metrics.Accuracy,
			"precision":        metrics.Precision,
			"recall":           metrics.Recall,
			"f1_score":         metrics.F1Score,
			"auc":              metrics.AUC,
			"training_seconds": trainingSeconds,
		})
	if res.Error != nil {
		return persistErr("update model metrics", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrModelNotFound
	}
	return nil
}

// Delete removes an inactive model. The active model must be deactivated first.
func (s *ModelService) Delete(ctx context.Context, tenantID, modelID uint) error {
	m, err := s.Get(ctx, tenantID, modelID)
	if err != nil {
		return err
	}
	if m.Active {
		return invalid("model %d is active", modelID)
	}
	return persistErr("delete model", s.db.WithContext(ctx).Delete(&models.Model{}, m.ID).Error)
}

// Tenants lists tenants that have registered at least one model.
func (s *ModelService) Tenants(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.Model{}).Distinct().Pluck("tenant_id", &ids).Error; err != nil {
		return nil, persistErr("list tenants", err)
	}
	return ids, nil
}
