package database

import (
	"path/filepath"
	"testing"

	"gorm.io/gorm"
)

// OpenTestDB opens a migrated SQLite database in a per-test temp directory.
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Connect(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}
