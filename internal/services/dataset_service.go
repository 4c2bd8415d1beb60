package services

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/flows"
	"github.com/flowguard/flowguard/internal/logger"
	"github.com/flowguard/flowguard/internal/models"
)

type DatasetService struct {
	db *gorm.DB
}

func NewDatasetService(db *gorm.DB) *DatasetService {
	return &DatasetService{db: db}
}

func (s *DatasetService) Create(ctx context.Context, d *models.Dataset) error {
	if d.TenantID == 0 {
		return invalid("tenant is required")
	}
	if d.Name == "" {
		return invalid("dataset name is required")
	}
	if d.Type == "" {
		d.Type = models.DatasetCustom
	}
	if !d.Type.Valid() {
		return invalid("unknown dataset type %q", d.Type)
	}
	if d.FilePath != "" && d.FileSize == 0 {
		if info, err := os.Stat(d.FilePath); err == nil {
			d.FileSize = info.Size()
		}
	}
	d.ID = 0
	return persistErr("create dataset", s.db.WithContext(ctx).Create(d).Error)
}

func (s *DatasetService) List(ctx context.Context, tenantID uint) ([]models.Dataset, error) {
	var list []models.Dataset
	if err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at desc, id desc").Find(&list).Error; err != nil {
		return nil, persistErr("list datasets", err)
	}
	return list, nil
}

func (s *DatasetService) Get(ctx context.Context, tenantID, id uint) (*models.Dataset, error) {
	var d models.Dataset
	if err := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).First(&d).Error; err != nil {
		return nil, notFound(err, ErrDatasetNotFound, "get dataset")
	}
	return &d, nil
}

func (s *DatasetService) Delete(ctx context.Context, tenantID, id uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.Dataset{})
	if res.Error != nil {
		return persistErr("delete dataset", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDatasetNotFound
	}
	return nil
}

// Profile scans the dataset file and stores its record and feature counts.
func (s *DatasetService) Profile(ctx context.Context, tenantID, id uint) (*flows.DatasetProfile, error) {
	d, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if d.FilePath == "" {
		return nil, invalid("dataset %d has no file", id)
	}

	f, err := os.Open(d.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	profile, err := flows.ProfileCSV(f)
	if err != nil {
		return nil, fmt.Errorf("profile dataset: %w", err)
	}

	updates := map[string]any{
		"total_records": profile.TotalRecords,
		"features":      profile.Features,
	}
	if info, err := f.Stat(); err == nil {
		updates["file_size"] = info.Size()
	}
	if err := s.db.WithContext(ctx).Model(&models.Dataset{}).Where("id = ?", d.ID).Updates(updates).Error; err != nil {
		return nil, persistErr("update dataset profile", err)
	}

	logger.WithFields(logrus.Fields{
		"tenant_id": tenantID,
		"dataset":   d.ID,
		"records":   profile.TotalRecords,
		"features":  profile.Features,
	}).Info("dataset profiled")
	return profile, nil
}
