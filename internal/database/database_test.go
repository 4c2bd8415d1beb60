package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowguard/flowguard/internal/models"
)

func TestConnect(t *testing.T) {
	db, err := Connect("file::memory:")
	assert.NoError(t, err)
	assert.NotNil(t, db)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err = Connect(dbPath)
	require.NoError(t, err)
	assert.True(t, db.Migrator().HasTable(&models.Alert{}))
	assert.True(t, db.Migrator().HasTable(&models.Experiment{}))
	assert.True(t, db.Migrator().HasIndex(&models.Model{}, "idx_models_active_tenant"))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "whatever")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "file::memory:", sqliteDSN("file::memory:"))
	assert.Equal(t, "a.db?_busy_timeout=1", sqliteDSN("a.db?_busy_timeout=1"))
	assert.Contains(t, sqliteDSN("data/flowguard.db"), "_journal_mode=WAL")
}

func TestOpenTestDB(t *testing.T) {
	db := OpenTestDB(t)
	require.NoError(t, db.Create(&models.Dataset{TenantID: 1, Name: "kdd", Type: models.DatasetNSLKDD}).Error)
	var count int64
	require.NoError(t, db.Model(&models.Dataset{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
