package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Prediction is the verdict recorded on a traffic log.
type Prediction string

const (
	PredictionNormal  Prediction = "NORMAL"
	PredictionAnomaly Prediction = "ANOMALY"
)

func (p Prediction) Valid() bool {
	return p == PredictionNormal || p == PredictionAnomaly
}

// TrafficLog records one analysed flow.
type TrafficLog struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	UUID            string         `json:"uuid" gorm:"uniqueIndex"`
	TenantID        uint           `json:"tenant_id" gorm:"not null;index"`
	ModelID         *uint          `json:"model_id,omitempty" gorm:"index"`
	SourceIP        string         `json:"source_ip"`
	DestinationIP   string         `json:"destination_ip"`
	SourcePort      *int           `json:"source_port,omitempty"`
	DestinationPort *int           `json:"destination_port,omitempty"`
	Protocol        string         `json:"protocol"`
	PacketCount     int64          `json:"packet_count"`
	ByteCount       int64          `json:"byte_count"`
	Duration        float64        `json:"duration"`
	Features        map[string]any `json:"features,omitempty" gorm:"serializer:json"`
	Prediction      Prediction     `json:"prediction" gorm:"index"`
	Confidence      float64        `json:"confidence"`
	Timestamp       time.Time      `json:"timestamp" gorm:"index"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (l *TrafficLog) BeforeCreate(tx *gorm.DB) (err error) {
	if l.UUID == "" {
		l.UUID = uuid.NewString()
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}
	// Window queries compare stored timestamps, which only works in one zone.
	l.Timestamp = l.Timestamp.UTC()
	return
}
