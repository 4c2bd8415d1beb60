package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/flowguard/flowguard/internal/models"
	"github.com/flowguard/flowguard/internal/report"
	"github.com/flowguard/flowguard/internal/services"
)

type AlertHandler struct {
	alerts  *services.AlertService
	stats   *services.StatisticsService
	reports *report.Service
}

func NewAlertHandler(alerts *services.AlertService, stats *services.StatisticsService, reports *report.Service) *AlertHandler {
	return &AlertHandler{alerts: alerts, stats: stats, reports: reports}
}

func (h *AlertHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	filter := services.AlertFilter{
		UnresolvedOnly: c.Query("unresolved") == "true",
		Severity:       models.Severity(c.Query("severity")),
		Limit:          limit,
	}
	alerts, err := h.alerts.List(c.Request.Context(), tenantID(c), filter)
	if err != nil {
		respondError(c, err, "Failed to list alerts")
		return
	}
	c.JSON(http.StatusOK, alerts)
}

func (h *AlertHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	a, err := h.alerts.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err, "Failed to get alert")
		return
	}
	c.JSON(http.StatusOK, a)
}

type resolveRequest struct {
	Notes string `json:"notes"`
}

func (h *AlertHandler) Resolve(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req resolveRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	a, err := h.alerts.Resolve(c.Request.Context(), tenantID(c), id, req.Notes)
	if err != nil {
		respondError(c, err, "Failed to resolve alert")
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *AlertHandler) Statistics(c *gin.Context) {
	stats, err := h.stats.GenerateStatistics(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err, "Failed to generate statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Analysis asks the report generator for an advisory write-up of an alert.
func (h *AlertHandler) Analysis(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	a, err := h.alerts.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err, "Failed to get alert")
		return
	}
	analysis, err := h.reports.AnalyzeAttack(c.Request.Context(), report.RequestFromAlert(a))
	if err != nil {
		respondError(c, err, "Failed to analyze alert")
		return
	}
	c.JSON(http.StatusOK, analysis)
}
