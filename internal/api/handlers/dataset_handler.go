package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/flowguard/flowguard/internal/models"
	"github.com/flowguard/flowguard/internal/services"
)

type DatasetHandler struct {
	datasets *services.DatasetService
}

func NewDatasetHandler(datasets *services.DatasetService) *DatasetHandler {
	return &DatasetHandler{datasets: datasets}
}

func (h *DatasetHandler) List(c *gin.Context) {
	list, err := h.datasets.List(c.Request.Context(), tenantID(c))
	if err != nil {
		respondError(c, err, "Failed to list datasets")
		return
	}
	c.JSON(http.StatusOK, list)
}

// Create registers a dataset file already present on the server.
func (h *DatasetHandler) Create(c *gin.Context) {
	var d models.Dataset
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d.TenantID = tenantID(c)
	if err := h.datasets.Create(c.Request.Context(), &d); err != nil {
		respondError(c, err, "Failed to create dataset")
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *DatasetHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	d, err := h.datasets.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err, "Failed to get dataset")
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *DatasetHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.datasets.Delete(c.Request.Context(), tenantID(c), id); err != nil {
		respondError(c, err, "Failed to delete dataset")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Dataset deleted"})
}

func (h *DatasetHandler) Profile(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	p, err := h.datasets.Profile(c.Request.Context(), tenantID(c), id)
	if err != nil {
		respondError(c, err, "Failed to profile dataset")
		return
	}
	c.JSON(http.StatusOK, p)
}
