package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/models"
)

const (
	defaultAlertLimit = 100
	maxAlertLimit     = 1000
)

type AlertFilter struct {
	UnresolvedOnly bool
	Severity       models.Severity
	Limit          int
}

// AlertService reads and resolves alerts. Alerts are only created by the pipeline.
type AlertService struct {
	db    *gorm.DB
	stats *StatisticsService
	now   func() time.Time
}

func NewAlertService(db *gorm.DB, stats *StatisticsService) *AlertService {
	return &AlertService{db: db, stats: stats, now: func() time.Time { return time.Now().UTC() }}
}

// List returns the tenant's alerts, newest detection first.
func (s *AlertService) List(ctx context.Context, tenantID uint, f AlertFilter) ([]models.Alert, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultAlertLimit
	}
	if limit > maxAlertLimit {
		limit = maxAlertLimit
	}
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if f.UnresolvedOnly {
		q = q.Where("resolved = ?", false)
	}
	if f.Severity != "" {
		if !f.Severity.Valid() {
			return nil, invalid("unknown severity %q", f.Severity)
		}
		q = q.Where("severity = ?", f.Severity)
	}
	var alerts []models.Alert
	if err := q.Order("detected_at desc, id desc").Limit(limit).Find(&alerts).Error; err != nil {
		return nil, persistErr("list alerts", err)
	}
	return alerts, nil
}

func (s *AlertService) Get(ctx context.Context, tenantID, id uint) (*models.Alert, error) {
	var a models.Alert
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&a).Error; err != nil {
		return nil, notFound(err, ErrAlertNotFound, "get alert")
	}
	return &a, nil
}

// Resolve marks an alert handled. Resolution is one-way.
func (s *AlertService) Resolve(ctx context.Context, tenantID, id uint, notes string) (*models.Alert, error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Alert{}).
		Where("id = ? AND tenant_id = ? AND resolved = ?", id, tenantID, false).
		Updates(map[string]any{"resolved": true, "resolved_at": now, "notes": notes})
	if res.Error != nil {
		return nil, persistErr("resolve alert", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, tenantID, id); err != nil {
			return nil, err
		}
		return nil, ErrAlertAlreadyResolved
	}
	if s.stats != nil {
		s.stats.Invalidate(ctx, tenantID)
	}
	return s.Get(ctx, tenantID, id)
}
