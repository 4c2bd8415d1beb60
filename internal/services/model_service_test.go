package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowguard/flowguard/internal/models"
)

func TestModelService_CreateIsInactive(t *testing.T) {
	db := setupServicesTestDB(t)
	svc := NewModelService(db)

	m := &models.Model{TenantID: 1, Name: "rf", Algorithm: models.AlgorithmRandomForest, Active: true}
	require.NoError(t, svc.Create(context.Background(), m))
	assert.False(t, m.Active)

	_, err := svc.GetActive(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoActiveModel)
}

func TestModelService_CreateValidation(t *testing.T) {
	svc := NewModelService(setupServicesTestDB(t))
	ctx := context.Background()

	tests := []struct {
		name  string
		model models.Model
	}{
		{"missing tenant", models.Model{Name: "a", Algorithm: models.AlgorithmSVM}},
		{"missing name", models.Model{TenantID: 1, Algorithm: models.AlgorithmSVM}},
		{"bad algorithm", models.Model{TenantID: 1, Name: "a", Algorithm: "LINEAR"}},
		{"metric out of range", models.Model{TenantID: 1, Name: "a", Algorithm: models.AlgorithmSVM, Metrics: models.ModelMetrics{Accuracy: ptr(1.2)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.model
			assert.ErrorIs(t, svc.Create(ctx, &m), ErrInvalidInput)
		})
	}
}

func TestModelService_ActivateSwapsActiveModel(t *testing.T) {
	db := setupServicesTestDB(t)
	svc := NewModelService(db)
	ctx := context.Background()

	a := createTestModel(t, svc, 1, "a")
	b := createTestModel(t, svc, 1, "b")
	other := createTestModel(t, svc, 2, "other")

	_, err := svc.Activate(ctx, 1, a.ID)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, 2, other.ID)
	require.NoError(t, err)

	activated, err := svc.Activate(ctx, 1, b.ID)
	require.NoError(t, err)
	assert.True(t, activated.Active)

	active, err := svc.GetActive(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)

	reloaded, err := svc.Get(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Active)

	// Tenant 2 is untouched.
	active2, err := svc.GetActive(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, other.ID, active2.ID)
}

func TestModelService_ActivateOtherTenantsModel(t *testing.T) {
	svc := NewModelService(setupServicesTestDB(t))
	m := createTestModel(t, svc, 2, "theirs")

	_, err := svc.Activate(context.Background(), 1, m.ID)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestModelService_ConcurrentActivation(t *testing.T) {
	db := setupServicesTestDB(t)
	svc := NewModelService(db)
	ctx := context.Background()

	var ids []uint
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, createTestModel(t, svc, 1, name).ID)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := svc.Activate(ctx, 1, id)
			assert.NoError(t, err)
		}(ids[i%len(ids)])
	}
	wg.Wait()

	var active int64
	require.NoError(t, db.Model(&models.Model{}).Where("tenant_id = ? AND active = ?", 1, true).Count(&active).Error)
	assert.Equal(t, int64(1), active)
}

func TestModelService_DeactivateAndDelete(t *testing.T) {
	svc := NewModelService(setupServicesTestDB(t))
	ctx := context.Background()
	m := createTestModel(t, svc, 1, "a")

	_, err := svc.Activate(ctx, 1, m.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Delete(ctx, 1, m.ID), ErrInvalidInput)

	require.NoError(t, svc.Deactivate(ctx, 1, m.ID))
	_, err = svc.GetActive(ctx, 1)
	assert.ErrorIs(t, err, ErrNoActiveModel)

	require.NoError(t, svc.Delete(ctx, 1, m.ID))
	_, err = svc.Get(ctx, 1, m.ID)
	assert.ErrorIs(t, err, ErrModelNotFound)
	assert.ErrorIs(t, svc.Deactivate(ctx, 1, m.ID), ErrModelNotFound)
}

func TestModelService_UpdateMetrics(t *testing.T) {
	svc := NewModelService(setupServicesTestDB(t))
	ctx := context.Background()
	m := createTestModel(t, svc, 1, "a")

	err := svc.UpdateMetrics(ctx, 1, m.ID, models.ModelMetrics{Accuracy: ptr(0.97), F1Score: ptr(0.91)}, 42)
	require.NoError(t, err)

	got, err := svc.Get(ctx, 1, m.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Metrics.Accuracy)
	assert.InDelta(t, 0.97, *got.Metrics.Accuracy, 1e-9)
	assert.Nil(t, got.Metrics.Recall)
	assert.Equal(t, 42, got.TrainingSeconds)

	err = svc.UpdateMetrics(ctx, 1, m.ID, models.ModelMetrics{AUC: ptr(-0.1)}, 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestModelService_Tenants(t *testing.T) {
	svc := NewModelService(setupServicesTestDB(t))
	createTestModel(t, svc, 3, "a")
	createTestModel(t, svc, 3, "b")
	createTestModel(t, svc, 7, "c")

	ids, err := svc.Tenants(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint{3, 7}, ids)
}
