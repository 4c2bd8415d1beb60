package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowguard/flowguard/internal/models"
	"github.com/flowguard/flowguard/internal/services"
)

type ModelHandler struct {
	registry    *services.ModelService
	experiments *services.ExperimentService
	training    *services.TrainingService
}

func NewModelHandler(registry *services.ModelService, experiments *services.ExperimentService, training *services.TrainingService) *ModelHandler {
	return &ModelHandler{registry: registry, experiments: experiments, training: training}
}

func (h *ModelHandler) List(c *gin.Context) {
	list, err := h.registry.List(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err, "Failed to list models")
		return
	}
	c.JSON(http.StatusOK, list)
}

// Create registers an externally trained artifact. New models start inactive.
func (h *ModelHandler) Create(c *gin.Context) {
	var m models.Model
	if err := c.ShouldBindJSON(&m); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m.TenantID = tenantID(c)
	if err := h.registry.Create(c.Request.Context(), &m); err != nil {
		respondError(c, err, "Failed to create model")
		return
	}
	c.JSON(http.StatusCreated, m)
}

func (h *ModelHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	m, err := h.registry.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err, "Failed to get model")
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *ModelHandler) Active(c *gin.Context) {
	m, err := h.registry.GetActive(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err, "Failed to get active model")
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *ModelHandler) Activate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	m, err := h.registry.Activate(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err, "Failed to activate model")
		return
	}
	c.JSON(http.StatusOK, m)
}

func (h *ModelHandler) Deactivate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.registry.Deactivate(c.Request.Context(), tenantID(c), id); err != nil {
		respondError(c, err, "Failed to deactivate model")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Model deactivated"})
}

func (h *ModelHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.registry.Delete(c.Request.Context(), tenantID(c), id); err != nil {
		respondError(c, err, "Failed to delete model")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Model deleted"})
}

func (h *ModelHandler) Experiments(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	list, err := h.experiments.ListByModel(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err, "Failed to list experiments")
		return
	}
	c.JSON(http.StatusOK, list)
}

// Train runs the engine synchronously. A failed run answers 502 with the
// recorded experiment so the caller can see the error.
func (h *ModelHandler) Train(c *gin.Context) {
	var req services.TrainingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	run, err := h.training.Train(c.Request.Context(), tenantID(c), req)
	if err != nil {
		if run != nil && run.Experiment != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "model": run.Model, "experiment": run.Experiment})
			return
		}
		respondError(c, err, "Failed to train model")
		return
	}
	c.JSON(http.StatusCreated, run)
}
