package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsbridge/control-service/internal/api/dto"
	"github.com/opsbridge/control-service/internal/api/middleware"
	"github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/services/usage"
)

// UsageHandler exposes the tenant's usage ledger.
type UsageHandler struct {
	ledger *usage.Ledger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(ledger *usage.Ledger) *UsageHandler {
	return &UsageHandler{ledger: ledger}
}

func usageResponse(record *models.UsageRecord) dto.UsageResponse {
	return dto.UsageResponse{
		UsageRecord:      record,
		CurrentMonthCost: record.Usage.CurrentMonth.Cost(),
		LimitReached:     record.LimitReached(),
	}
}

// Get handles GET /llm/usage
// @Summary Get tenant usage
// @Description Returns the tenant's settings, current month counters, history and alerts
// @Tags Usage
// @Produce json
// @Success 200 {object} dto.UsageResponse
// @Security BearerAuth
// @Router /api/v1/llm/usage [get]
func (h *UsageHandler) Get(c *gin.Context) {
	record, err := h.ledger.GetOrCreate(c.Request.Context(), middleware.GetTenantID(c))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, usageResponse(record))
}

// UpdateSettings handles PUT /llm/usage/settings
// @Summary Update tenant usage settings
// @Tags Usage
// @Accept json
// @Produce json
// @Param request body usage.SettingsUpdate true "Settings"
// @Success 200 {object} dto.UsageResponse
// @Failure 400 {object} dto.ErrorResponse "Validation error"
// @Failure 403 {object} dto.ErrorResponse "Forbidden"
// @Security BearerAuth
// @Router /api/v1/llm/usage/settings [put]
func (h *UsageHandler) UpdateSettings(c *gin.Context) {
	var req usage.SettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	record, err := h.ledger.UpdateSettings(c.Request.Context(), middleware.GetTenantID(c), &req)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, usageResponse(record))
}

// AcknowledgeAlert handles POST /llm/usage/alerts/:alertId/acknowledge
// @Summary Acknowledge a usage alert
// @Tags Usage
// @Produce json
// @Param alertId path string true "Alert ID"
// @Success 200 {object} models.UsageAlert
// @Failure 404 {object} dto.ErrorResponse "Alert not found"
// @Security BearerAuth
// @Router /api/v1/llm/usage/alerts/{alertId}/acknowledge [post]
func (h *UsageHandler) AcknowledgeAlert(c *gin.Context) {
	alert, err := h.ledger.AcknowledgeAlert(c.Request.Context(), middleware.GetTenantID(c), c.Param("alertId"), middleware.GetUserID(c))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, alert)
}
