package models

import "time"

type DatasetType string

const (
	DatasetNSLKDD   DatasetType = "NSL-KDD"
	DatasetCICIDS   DatasetType = "CICIDS2017"
	DatasetUNSWNB15 DatasetType = "UNSW-NB15"
	DatasetKDD99    DatasetType = "KDD99"
	DatasetCustom   DatasetType = "CUSTOM"
)

func (t DatasetType) Valid() bool {
	switch t {
	case DatasetNSLKDD, DatasetCICIDS, DatasetUNSWNB15, DatasetKDD99, DatasetCustom:
		return true
	}
	return false
}

// Dataset describes a labelled flow corpus stored on disk.
type Dataset struct {
	ID              uint        `json:"id" gorm:"primaryKey"`
	TenantID        uint        `json:"tenant_id" gorm:"not null;index"`
	Name            string      `json:"name" gorm:"not null"`
	Description     string      `json:"description"`
	Type            DatasetType `json:"type"`
	FilePath        string      `json:"file_path"`
	FileSize        int64       `json:"file_size"`
	TotalRecords    int         `json:"total_records"`
	Features        int         `json:"features"`
	TrainingRecords int         `json:"training_records"`
	TestingRecords  int         `json:"testing_records"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}
