package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Severity is the escalation level assigned to an alert.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities lists every severity from least to most urgent.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

func (s Severity) rank() int {
	for i, sev := range Severities {
		if sev == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool { return s.rank() >= 0 }

// AtLeast reports whether s is as urgent as min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Valid() && s.rank() >= min.rank()
}

// Escalates reports whether alerts of this severity are pushed to the owner.
func (s Severity) Escalates() bool { return s.AtLeast(SeverityHigh) }

// AttackType is the display label of a classified attack.
type AttackType string

const (
	AttackDDoS         AttackType = "DDoS Attack"
	AttackPortScanning AttackType = "Port Scanning"
	AttackSQLInjection AttackType = "SQL Injection"
	AttackBruteForce   AttackType = "Brute Force Attack"
	AttackDoS          AttackType = "DoS Attack"
	AttackUnknown      AttackType = "Unknown Attack"
)

// AttackTypes lists the closed set of attack labels.
var AttackTypes = []AttackType{AttackDDoS, AttackPortScanning, AttackSQLInjection, AttackBruteForce, AttackDoS, AttackUnknown}

// ParseAttackType maps a stored label back onto the closed set.
// Anything unrecognised becomes AttackUnknown.
func ParseAttackType(s string) AttackType {
	for _, at := range AttackTypes {
		if string(at) == s {
			return at
		}
	}
	return AttackUnknown
}

// Alert is a persisted anomaly verdict with its classification.
type Alert struct {
	ID              uint           `json:"id" gorm:"primaryKey"`
	UUID            string         `json:"uuid" gorm:"uniqueIndex"`
	TenantID        uint           `json:"tenant_id" gorm:"not null;index"`
	ModelID         *uint          `json:"model_id,omitempty" gorm:"index"`
	TrafficLogID    *uint          `json:"traffic_log_id,omitempty"`
	Severity        Severity       `json:"severity" gorm:"index"`
	AttackType      AttackType     `json:"attack_type" gorm:"index"`
	SourceIP        string         `json:"source_ip"`
	DestinationIP   string         `json:"destination_ip"`
	SourcePort      *int           `json:"source_port,omitempty"`
	DestinationPort *int           `json:"destination_port,omitempty"`
	Protocol        string         `json:"protocol"`
	Confidence      float64        `json:"confidence"`
	Description     string         `json:"description" gorm:"type:text"`
	Features        map[string]any `json:"features,omitempty" gorm:"serializer:json"`
	Resolved        bool           `json:"resolved" gorm:"index"`
	ResolvedAt      *time.Time     `json:"resolved_at,omitempty"`
	Notes           string         `json:"notes" gorm:"type:text"`
	DetectedAt      time.Time      `json:"detected_at" gorm:"index"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (a *Alert) BeforeCreate(tx *gorm.DB) (err error) {
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	if a.DetectedAt.IsZero() {
		a.DetectedAt = time.Now()
	}
	a.DetectedAt = a.DetectedAt.UTC()
	return
}
