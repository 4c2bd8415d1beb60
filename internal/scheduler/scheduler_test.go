package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowguard/flowguard/internal/config"
	"github.com/flowguard/flowguard/internal/database"
	"github.com/flowguard/flowguard/internal/metrics"
	"github.com/flowguard/flowguard/internal/models"
	"github.com/flowguard/flowguard/internal/services"
)

func newTestScheduler(t *testing.T, cfg config.SchedulerConfig) (*Scheduler, *services.ModelService, *services.ExperimentService) {
	t.Helper()
	db := database.OpenTestDB(t)
	ms := services.NewModelService(db)
	es := services.NewExperimentService(db)
	s, err := New(cfg, ms, es, services.NewStatisticsService(db, nil, 0, ""))
	require.NoError(t, err)

	for _, p := range []models.Prediction{models.PredictionNormal, models.PredictionAnomaly, models.PredictionAnomaly, models.PredictionNormal} {
		require.NoError(t, db.Create(&models.TrafficLog{TenantID: 41, SourceIP: "192.0.2.1", Prediction: p}).Error)
	}
	return s, ms, es
}

func TestNew_RegistersJobs(t *testing.T) {
	cfg := config.Defaults().Scheduler
	s, _, _ := newTestScheduler(t, cfg)
	assert.Len(t, s.Cron.Entries(), 2)

	cfg.WatchdogSpec = ""
	s, _, _ = newTestScheduler(t, cfg)
	assert.Len(t, s.Cron.Entries(), 1)
}

func TestNew_RejectsBadSpec(t *testing.T) {
	cfg := config.Defaults().Scheduler
	cfg.PatternSpec = "every now and then"
	_, err := New(cfg, nil, nil, nil)
	assert.Error(t, err)
}

func TestSnapshotPatterns(t *testing.T) {
	s, ms, _ := newTestScheduler(t, config.Defaults().Scheduler)
	require.NoError(t, ms.Create(context.Background(), &models.Model{TenantID: 41, Name: "rf", Algorithm: models.AlgorithmRandomForest}))

	require.NoError(t, s.SnapshotPatterns(context.Background()))
	assert.InDelta(t, 0.5, testutil.ToFloat64(metrics.AnomalyRate(41)), 1e-9)
}

func TestFailStaleExperiments(t *testing.T) {
	cfg := config.Defaults().Scheduler
	cfg.ExperimentDeadline = time.Hour
	s, _, es := newTestScheduler(t, cfg)
	ctx := context.Background()

	e := &models.Experiment{TenantID: 7, ModelID: 1, Name: "stuck"}
	require.NoError(t, es.Create(ctx, e))
	require.NoError(t, es.Start(ctx, 7, e.ID))

	require.NoError(t, s.FailStaleExperiments(ctx))
	got, err := es.Get(ctx, 7, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExperimentRunning, got.Status)

	s.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	require.NoError(t, s.FailStaleExperiments(ctx))
	got, err = es.Get(ctx, 7, e.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ExperimentFailed, got.Status)
	assert.NotEmpty(t, got.Error)
}
