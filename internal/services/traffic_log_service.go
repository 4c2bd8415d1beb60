package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/models"
)

const (
	defaultLogLimit = 1000
	maxLogLimit     = 10000
)

type TrafficLogService struct {
	db *gorm.DB
}

func NewTrafficLogService(db *gorm.DB) *TrafficLogService {
	return &TrafficLogService{db: db}
}

// Create ingests a traffic log directly, without running inference.
func (s *TrafficLogService) Create(ctx context.Context, l *models.TrafficLog) error {
	if l.TenantID == 0 {
		return invalid("tenant is required")
	}
	if !l.Prediction.Valid() {
		return invalid("prediction must be NORMAL or ANOMALY, got %q", l.Prediction)
	}
	if l.Confidence < 0 || l.Confidence > 1 {
		return invalid("confidence out of range: %v", l.Confidence)
	}
	l.ID = 0
	return persistErr("create traffic log", s.db.WithContext(ctx).Create(l).Error)
}

func (s *TrafficLogService) List(ctx context.Context, tenantID uint, since time.Time, limit int) ([]models.TrafficLog, error) {
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if !since.IsZero() {
		q = q.Where("timestamp >= ?", since)
	}
	var logs []models.TrafficLog
	if err := q.Order("timestamp desc, id desc").Limit(limit).Find(&logs).Error; err != nil {
		return nil, persistErr("list traffic logs", err)
	}
	return logs, nil
}

func (s *TrafficLogService) Get(ctx context.Context, tenantID, id uint) (*models.TrafficLog, error) {
	var l models.TrafficLog
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&l).Error; err != nil {
		return nil, notFound(err, ErrTrafficLogNotFound, "get traffic log")
	}
	return &l, nil
}
