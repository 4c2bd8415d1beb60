package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/flowguard/flowguard/internal/api/middleware"
	"github.com/flowguard/flowguard/internal/inference"
	"github.com/flowguard/flowguard/internal/report"
	"github.com/flowguard/flowguard/internal/services"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var inv *services.InvariantViolationError
	var gen *report.GenerationError
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrAlertNotFound),
		errors.Is(err, services.ErrModelNotFound),
		errors.Is(err, services.ErrExperimentNotFound),
		errors.Is(err, services.ErrDatasetNotFound),
		errors.Is(err, services.ErrTrafficLogNotFound),
		errors.Is(err, services.ErrProviderNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrNoActiveModel),
		errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrAlertAlreadyResolved):
		return http.StatusConflict
	case errors.As(err, &inv):
		return http.StatusInternalServerError
	case errors.Is(err, report.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &gen), isEngineError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isEngineError(err error) bool {
	switch inference.ErrorKind(err) {
	case "protocol", "process", "timeout", "breaker_open":
		return true
	}
	return false
}

// respondError writes the mapped status. 5xx bodies hide the cause, which is
// logged instead.
func respondError(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		middleware.GetRequestLogger(c).WithError(err).Error(msg)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func tenantID(c *gin.Context) uint {
	id, _ := middleware.TenantID(c)
	return id
}

// idParam parses a positive numeric path parameter, writing a 400 on failure.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(id), true
}
