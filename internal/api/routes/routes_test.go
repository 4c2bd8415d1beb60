package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowguard/flowguard/internal/config"
	"github.com/flowguard/flowguard/internal/database"
	"github.com/flowguard/flowguard/internal/inference"
	"github.com/flowguard/flowguard/internal/models"
)

func setupRouter(t *testing.T, scorer inference.Scorer, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	db := database.OpenTestDB(t)
	guarded := inference.NewGuardedScorer(scorer, inference.GuardOptions{})
	_, err := Register(router, db, cfg, Dependencies{Scorer: guarded})
	require.NoError(t, err)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path, tenant string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenant != "" {
		req.Header.Set("X-Tenant-ID", tenant)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegister(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scheduler.Enabled = false
	router := setupRouter(t, inference.FixedScorer(inference.VerdictNormal, 0.1), cfg)

	paths := map[string]bool{}
	for _, r := range router.Routes() {
		paths[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /metrics",
		"GET /api/v1/health",
		"POST /api/v1/traffic/analyze",
		"POST /api/v1/traffic/analyze/batch",
		"GET /api/v1/alerts/statistics",
		"POST /api/v1/alerts/:id/resolve",
		"POST /api/v1/models/:id/activate",
		"POST /api/v1/models/train",
	} {
		assert.True(t, paths[want], "missing route %s", want)
	}
}

func TestRegister_RequiresScorer(t *testing.T) {
	_, err := Register(gin.New(), database.OpenTestDB(t), config.Defaults(), Dependencies{})
	assert.Error(t, err)
}

func TestRegister_ReturnsSchedulerWhenEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sched, err := Register(gin.New(), database.OpenTestDB(t), config.Defaults(), Dependencies{
		Scorer: inference.FixedScorer(inference.VerdictNormal, 0),
	})
	require.NoError(t, err)
	require.NotNil(t, sched)
	assert.Len(t, sched.Cron.Entries(), 2)
}

func TestTenantHeaderRequired(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scheduler.Enabled = false
	router := setupRouter(t, inference.FixedScorer(inference.VerdictNormal, 0), cfg)

	w := doJSON(t, router, http.MethodGet, "/api/v1/alerts", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "closed", decode[map[string]any](t, w)["inference_breaker"])
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestAnalyzeToResolveFlow(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scheduler.Enabled = false
	cfg.Engine.ModelDir = t.TempDir()
	router := setupRouter(t, inference.FixedScorer(inference.VerdictAnomaly, 0.95), cfg)

	// No active model yet.
	flow := map[string]any{
		"source_ip":        "203.0.113.7",
		"destination_ip":   "10.0.0.5",
		"source_port":      40000,
		"destination_port": 80,
		"protocol":         "TCP",
		"duration":         2,
		"bytes_sent":       900000,
		"bytes_received":   200000,
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/traffic/analyze", "1", flow)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/models", "1", map[string]any{
		"name":          "rf",
		"algorithm":     "RANDOM_FOREST",
		"artifact_path": "/models/rf.pkl",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	model := decode[models.Model](t, w)
	assert.False(t, model.Active)

	w = doJSON(t, router, http.MethodPost, "/api/v1/models/"+itoa(model.ID)+"/activate", "1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodPost, "/api/v1/traffic/analyze", "1", flow)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[map[string]any](t, w)
	assert.Equal(t, true, res["is_anomaly"])
	assert.Equal(t, "DDoS Attack", res["attack_type"])
	assert.Equal(t, "CRITICAL", res["severity"])
	alertID := uint(res["alert_id"].(float64))
	require.NotZero(t, alertID)

	// Another tenant sees nothing.
	w = doJSON(t, router, http.MethodGet, "/api/v1/alerts/"+itoa(alertID), "2", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/alerts/statistics", "1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[map[string]any](t, w)
	assert.Equal(t, float64(1), stats["total_alerts"])

	w = doJSON(t, router, http.MethodPost, "/api/v1/alerts/"+itoa(alertID)+"/resolve", "1", map[string]string{"notes": "blocked upstream"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	alert := decode[models.Alert](t, w)
	assert.True(t, alert.Resolved)
	assert.Equal(t, "blocked upstream", alert.Notes)

	w = doJSON(t, router, http.MethodPost, "/api/v1/alerts/"+itoa(alertID)+"/resolve", "1", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/alerts/statistics", "1", nil)
	stats = decode[map[string]any](t, w)
	assert.Equal(t, float64(0), stats["total_alerts"])

	w = doJSON(t, router, http.MethodGet, "/api/v1/traffic/patterns?window=1h", "1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	patterns := decode[map[string]any](t, w)
	assert.Equal(t, float64(1), patterns["anomalous_traffic"])

	// Report generation is not configured.
	w = doJSON(t, router, http.MethodPost, "/api/v1/alerts/"+itoa(alertID)+"/analysis", "1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }
