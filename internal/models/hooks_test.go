package models

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory db: %v", err)
	}
	if err := db.AutoMigrate(&Alert{}, &TrafficLog{}, &Model{}, &Notification{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func TestAlert_BeforeCreate(t *testing.T) {
	db := setupTestDB(t)
	a := &Alert{TenantID: 1, Severity: SeverityHigh, AttackType: AttackDoS}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if a.UUID == "" {
		t.Fatalf("expected UUID to be populated by BeforeCreate")
	}
	if a.DetectedAt.IsZero() {
		t.Fatalf("expected DetectedAt to default to now")
	}
}

func TestTrafficLog_BeforeCreate(t *testing.T) {
	db := setupTestDB(t)
	l := &TrafficLog{TenantID: 1, Prediction: PredictionNormal}
	if err := db.Create(l).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if l.UUID == "" || l.Timestamp.IsZero() {
		t.Fatalf("expected UUID and Timestamp to be populated, got %+v", l)
	}
}

func TestModel_OneActivePerTenant(t *testing.T) {
	db := setupTestDB(t)
	if err := db.Create(&Model{TenantID: 1, Name: "a", Active: true}).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := db.Create(&Model{TenantID: 2, Name: "b", Active: true}).Error; err != nil {
		t.Fatalf("other tenant should not conflict: %v", err)
	}
	if err := db.Create(&Model{TenantID: 1, Name: "c"}).Error; err != nil {
		t.Fatalf("inactive model should not conflict: %v", err)
	}
	if err := db.Create(&Model{TenantID: 1, Name: "d", Active: true}).Error; err == nil {
		t.Fatalf("expected second active model for the same tenant to be rejected")
	}
}

func TestNotification_BeforeCreate(t *testing.T) {
	db := setupTestDB(t)
	n := &Notification{TenantID: 1, Title: "x"}
	if err := db.Create(n).Error; err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if n.ID == "" {
		t.Fatalf("expected ID to be populated by BeforeCreate")
	}
}
