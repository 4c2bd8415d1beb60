package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowguard/flowguard/internal/models"
)

func TestAlertService_ResolveIsOneWay(t *testing.T) {
	db := setupServicesTestDB(t)
	svc := NewAlertService(db, nil)
	ctx := context.Background()
	a := seedAlert(t, db, 1, models.SeverityHigh, models.AttackDDoS, time.Now(), false)

	resolved, err := svc.Resolve(ctx, 1, a.ID, "blocked at edge")
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	assert.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, "blocked at edge", resolved.Notes)

	_, err = svc.Resolve(ctx, 1, a.ID, "again")
	assert.ErrorIs(t, err, ErrAlertAlreadyResolved)

	got, err := svc.Get(ctx, 1, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "blocked at edge", got.Notes)
}

func TestAlertService_ResolveScopedToTenant(t *testing.T) {
	db := setupServicesTestDB(t)
	svc := NewAlertService(db, nil)
	a := seedAlert(t, db, 1, models.SeverityHigh, models.AttackDDoS, time.Now(), false)

	_, err := svc.Resolve(context.Background(), 2, a.ID, "")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAlertService_ListFilters(t *testing.T) {
	db := setupServicesTestDB(t)
	svc := NewAlertService(db, nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	seedAlert(t, db, 1, models.SeverityLow, models.AttackDoS, base, false)
	seedAlert(t, db, 1, models.SeverityHigh, models.AttackDDoS, base.Add(time.Minute), true)
	newest := seedAlert(t, db, 1, models.SeverityHigh, models.AttackPortScanning, base.Add(2*time.Minute), false)
	seedAlert(t, db, 2, models.SeverityHigh, models.AttackDDoS, base, false)

	all, err := svc.List(ctx, 1, AlertFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, newest.ID, all[0].ID)

	open, err := svc.List(ctx, 1, AlertFilter{UnresolvedOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	high, err := svc.List(ctx, 1, AlertFilter{UnresolvedOnly: true, Severity: models.SeverityHigh})
	require.NoError(t, err)
	require.Len(t, high, 1)
	assert.Equal(t, newest.ID, high[0].ID)

	limited, err := svc.List(ctx, 1, AlertFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = svc.List(ctx, 1, AlertFilter{Severity: "SEVERE"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestTrafficLogService_CreateAndList(t *testing.T) {
	svc := NewTrafficLogService(setupServicesTestDB(t))
	ctx := context.Background()

	err := svc.Create(ctx, &models.TrafficLog{TenantID: 1, Prediction: "MAYBE"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	err = svc.Create(ctx, &models.TrafficLog{TenantID: 1, Prediction: models.PredictionNormal, Confidence: 1.5})
	assert.ErrorIs(t, err, ErrInvalidInput)

	old := &models.TrafficLog{TenantID: 1, SourceIP: "192.0.2.1", Prediction: models.PredictionNormal, Confidence: 0.9, Timestamp: time.Now().UTC().Add(-2 * time.Hour)}
	recent := &models.TrafficLog{TenantID: 1, SourceIP: "192.0.2.2", Prediction: models.PredictionAnomaly, Confidence: 0.7}
	require.NoError(t, svc.Create(ctx, old))
	require.NoError(t, svc.Create(ctx, recent))
	assert.NotEmpty(t, recent.UUID)

	logs, err := svc.List(ctx, 1, time.Now().UTC().Add(-time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, recent.ID, logs[0].ID)

	_, err = svc.Get(ctx, 2, recent.ID)
	assert.ErrorIs(t, err, ErrTrafficLogNotFound)
}
