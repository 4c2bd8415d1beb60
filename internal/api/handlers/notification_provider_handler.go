package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowguard/flowguard/internal/models"
	"github.com/flowguard/flowguard/internal/services"
)

type NotificationProviderHandler struct {
	service *services.NotificationService
}

func NewNotificationProviderHandler(service *services.NotificationService) *NotificationProviderHandler {
	return &NotificationProviderHandler{service: service}
}

func (h *NotificationProviderHandler) List(c *gin.Context) {
	providers, err := h.service.ListProviders(tenantID(c))
	if err != nil {
		respondError(c, err, "Failed to list providers")
		return
	}
	c.JSON(http.StatusOK, providers)
}

func (h *NotificationProviderHandler) Create(c *gin.Context) {
	var provider models.NotificationProvider
	if err := c.ShouldBindJSON(&provider); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	provider.ID = ""
	provider.TenantID = tenantID(c)
	if err := h.service.CreateProvider(&provider); err != nil {
		respondError(c, err, "Failed to create provider")
		return
	}
	c.JSON(http.StatusCreated, provider)
}

func (h *NotificationProviderHandler) Update(c *gin.Context) {
	var provider models.NotificationProvider
	if err := c.ShouldBindJSON(&provider); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	provider.ID = c.Param("id")
	provider.TenantID = tenantID(c)
	if err := h.service.UpdateProvider(&provider); err != nil {
		respondError(c, err, "Failed to update provider")
		return
	}
	c.JSON(http.StatusOK, provider)
}

func (h *NotificationProviderHandler) Delete(c *gin.Context) {
	if err := h.service.DeleteProvider(tenantID(c), c.Param("id")); err != nil {
		respondError(c, err, "Failed to delete provider")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Provider deleted"})
}

// Test sends a one-off message through an unsaved provider configuration.
func (h *NotificationProviderHandler) Test(c *gin.Context) {
	var provider models.NotificationProvider
	if err := c.ShouldBindJSON(&provider); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	provider.TenantID = tenantID(c)

	if err := h.service.TestProvider(c.Request.Context(), provider); err != nil {
		_, _ = h.service.Create(provider.TenantID, models.NotificationTypeError, "Test Failed", fmt.Sprintf("Provider %s test failed: %v", provider.Name, err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Test notification sent"})
}

func (h *NotificationProviderHandler) Templates(c *gin.Context) {
	c.JSON(http.StatusOK, []gin.H{
		{"id": "minimal", "name": "Minimal", "description": "Title, message, severity and time."},
		{"id": "detailed", "name": "Detailed", "description": "Minimal fields plus tenant and the full event data."},
		{"id": "custom", "name": "Custom", "description": "Your own JSON template in the Config field."},
	})
}

type previewRequest struct {
	models.NotificationProvider
	Data map[string]any `json:"data"`
}

// Preview renders a provider's webhook payload against sample escalation data.
func (h *NotificationProviderHandler) Preview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload := map[string]any{
		"Title":     "HIGH level threat detected",
		"Message":   "Attack type: DDoS Attack\nSource: 203.0.113.7\nConfidence: 87.50%",
		"Severity":  string(models.SeverityHigh),
		"TenantID":  tenantID(c),
		"EventType": "preview",
	}
	for k, v := range req.Data {
		payload[k] = v
	}
	payload["Time"] = time.Now().UTC().Format(time.RFC3339)

	rendered, parsed, err := h.service.RenderTemplate(req.NotificationProvider, payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "rendered": rendered})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rendered": rendered, "parsed": parsed})
}
