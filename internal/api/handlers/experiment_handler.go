package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowguard/flowguard/internal/services"
)

type ExperimentHandler struct {
	experiments *services.ExperimentService
}

func NewExperimentHandler(experiments *services.ExperimentService) *ExperimentHandler {
	return &ExperimentHandler{experiments: experiments}
}

func (h *ExperimentHandler) List(c *gin.Context) {
	list, err := h.experiments.List(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err, "Failed to list experiments")
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ExperimentHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	e, err := h.experiments.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err, "Failed to get experiment")
		return
	}
	c.JSON(http.StatusOK, e)
}
