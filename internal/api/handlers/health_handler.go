package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/flowguard/flowguard/internal/version"
)

// BreakerReporter exposes the inference circuit breaker state.
type BreakerReporter interface {
	State() string
}

type HealthHandler struct {
	db      *gorm.DB
	breaker BreakerReporter
}

func NewHealthHandler(db *gorm.DB, breaker BreakerReporter) *HealthHandler {
	return &HealthHandler{db: db, breaker: breaker}
}

// Check reports service metadata, store reachability and breaker state. An
// open breaker degrades the status but the service still answers 200 since
// the pipeline keeps running with neutral verdicts.
func (h *HealthHandler) Check(c *gin.Context) {
	body := gin.H{
		"status":     "ok",
		"service":    version.Name,
		"version":    version.Version,
		"git_commit": version.GitCommit,
		"build_time": version.BuildTime,
		"database":   "ok",
	}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		body["status"] = "unavailable"
		body["database"] = "unreachable"
		status = http.StatusServiceUnavailable
	}

	if h.breaker != nil {
		state := h.breaker.State()
		body["inference_breaker"] = state
		if state != "closed" && status == http.StatusOK {
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
