package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowguard/flowguard/internal/models"
	"github.com/flowguard/flowguard/internal/services"
)

const maxBatchSize = 1000

type TrafficHandler struct {
	analysis *services.AnalysisService
	registry *services.ModelService
	logs     *services.TrafficLogService
	stats    *services.StatisticsService
}

func NewTrafficHandler(analysis *services.AnalysisService, registry *services.ModelService, logs *services.TrafficLogService, stats *services.StatisticsService) *TrafficHandler {
	return &TrafficHandler{analysis: analysis, registry: registry, logs: logs, stats: stats}
}

type analyzeRequest struct {
	models.FlowRecord
	// ModelID selects a specific model; zero uses the tenant's active model.
	ModelID uint `json:"model_id"`
}

type analyzeBatchRequest struct {
	ModelID uint                `json:"model_id"`
	Flows   []models.FlowRecord `json:"flows"`
}

func (h *TrafficHandler) modelRef(c *gin.Context, modelID uint) (services.ModelRef, bool) {
	var (
		m   *models.Model
		err error
	)
	if modelID == 0 {
		m, err = h.registry.GetActive(c.Request.Context(), tenantID(c))
	} else {
		m, err = h.registry.Get(c.Request.Context(), tenantID(c), modelID)
	}
	if err != nil {
		respondError(c, err, "Failed to resolve model")
		return services.ModelRef{}, false
	}
	return services.RefFor(m), true
}

// Analyze scores one flow. Engine failures still answer 200 with a neutral result.
func (h *TrafficHandler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.FlowRecord.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ref, ok := h.modelRef(c, req.ModelID)
	if !ok {
		return
	}

	res, err := h.analysis.AnalyzeTraffic(c.Request.Context(), tenantID(c), req.FlowRecord, ref)
	if err != nil {
		respondError(c, err, "Failed to store analysis result")
		return
	}
	c.JSON(http.StatusOK, res)
}

// AnalyzeBatch returns one result per flow in request order.
func (h *TrafficHandler) AnalyzeBatch(c *gin.Context) {
	var req analyzeBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Flows) == 0 || len(req.Flows) > maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "flows must contain between 1 and " + strconv.Itoa(maxBatchSize) + " records"})
		return
	}
	for i, f := range req.Flows {
		if err := f.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "flow " + strconv.Itoa(i) + ": " + err.Error()})
			return
		}
	}
	ref, ok := h.modelRef(c, req.ModelID)
	if !ok {
		return
	}

	results := h.analysis.AnalyzeTrafficBatch(c.Request.Context(), tenantID(c), req.Flows, ref)
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// Ingest stores an externally scored traffic log without running inference.
func (h *TrafficHandler) Ingest(c *gin.Context) {
	var l models.TrafficLog
	if err := c.ShouldBindJSON(&l); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	l.TenantID = tenantID(c)
	if err := h.logs.Create(c.Request.Context(), &l); err != nil {
		respondError(c, err, "Failed to store traffic log")
		return
	}
	c.JSON(http.StatusCreated, l)
}

func (h *TrafficHandler) ListLogs(c *gin.Context) {
	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = t.UTC()
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	logs, err := h.logs.List(c.Request.Context(), tenantID(c), since, limit)
	if err != nil {
		respondError(c, err, "Failed to list traffic logs")
		return
	}
	c.JSON(http.StatusOK, logs)
}

func (h *TrafficHandler) GetLog(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	l, err := h.logs.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err, "Failed to get traffic log")
		return
	}
	c.JSON(http.StatusOK, l)
}

// Patterns reports traffic over a trailing window, e.g. ?window=30m.
func (h *TrafficHandler) Patterns(c *gin.Context) {
	var window time.Duration
	if raw := c.Query("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "window must be a positive duration such as 1h"})
			return
		}
		window = d
	}
	p, err := h.stats.AnalyzeTrafficPatterns(c.Request.Context(), tenantID(c), window)
	if err != nil {
		respondError(c, err, "Failed to analyze traffic patterns")
		return
	}
	c.JSON(http.StatusOK, p)
}
