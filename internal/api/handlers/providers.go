package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsbridge/control-service/internal/api/dto"
	"github.com/opsbridge/control-service/internal/api/middleware"
	"github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/services/llm"
	"github.com/opsbridge/control-service/internal/services/providers"
)

// ProvidersHandler manages the provider catalog.
type ProvidersHandler struct {
	registry *providers.Registry
	router   *llm.Router
}

// NewProvidersHandler creates a new ProvidersHandler.
func NewProvidersHandler(registry *providers.Registry, router *llm.Router) *ProvidersHandler {
	return &ProvidersHandler{registry: registry, router: router}
}

// Statuses handles GET /llm/providers/status
// @Summary Provider status
// @Description Returns the public status view of every provider
// @Tags Providers
// @Produce json
// @Success 200 {object} dto.ProviderStatusesResponse
// @Security BearerAuth
// @Router /api/v1/llm/providers/status [get]
func (h *ProvidersHandler) Statuses(c *gin.Context) {
	statuses, err := h.registry.Statuses(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ProviderStatusesResponse{Providers: statuses})
}

// List handles GET /llm/providers
// @Summary List providers
// @Tags Providers
// @Produce json
// @Param active query bool false "Only active providers"
// @Success 200 {object} dto.ProvidersResponse
// @Failure 403 {object} dto.ErrorResponse "Forbidden"
// @Security BearerAuth
// @Router /api/v1/llm/providers [get]
func (h *ProvidersHandler) List(c *gin.Context) {
	list, err := h.registry.List(c.Request.Context(), c.Query("active") == "true")
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ProvidersResponse{Providers: list, Total: len(list)})
}

// Get handles GET /llm/providers/:providerId
// @Summary Get a provider
// @Tags Providers
// @Produce json
// @Param providerId path string true "Provider ID"
// @Success 200 {object} models.Provider
// @Failure 404 {object} dto.ErrorResponse "Provider not found"
// @Security BearerAuth
// @Router /api/v1/llm/providers/{providerId} [get]
func (h *ProvidersHandler) Get(c *gin.Context) {
	p, err := h.registry.MustGet(c.Request.Context(), c.Param("providerId"))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Create handles POST /llm/providers
// @Summary Register a provider
// @Tags Providers
// @Accept json
// @Produce json
// @Param request body dto.CreateProviderRequest true "Provider"
// @Success 201 {object} models.Provider
// @Failure 400 {object} dto.ErrorResponse "Validation error"
// @Security BearerAuth
// @Router /api/v1/llm/providers [post]
func (h *ProvidersHandler) Create(c *gin.Context) {
	var req dto.CreateProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	p, err := h.registry.Create(c.Request.Context(), req.ToModel())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Update handles PUT /llm/providers/:providerId
// @Summary Update a provider
// @Tags Providers
// @Accept json
// @Produce json
// @Param providerId path string true "Provider ID"
// @Param request body providers.Update true "Changes"
// @Success 200 {object} models.Provider
// @Failure 400 {object} dto.ErrorResponse "Validation error"
// @Failure 404 {object} dto.ErrorResponse "Provider not found"
// @Security BearerAuth
// @Router /api/v1/llm/providers/{providerId} [put]
func (h *ProvidersHandler) Update(c *gin.Context) {
	var req providers.Update
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	p, err := h.registry.Update(c.Request.Context(), c.Param("providerId"), &req)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete handles DELETE /llm/providers/:providerId
// @Summary Delete a provider
// @Tags Providers
// @Param providerId path string true "Provider ID"
// @Success 204
// @Failure 404 {object} dto.ErrorResponse "Provider not found"
// @Failure 409 {object} dto.ErrorResponse "Provider is a fallback target"
// @Security BearerAuth
// @Router /api/v1/llm/providers/{providerId} [delete]
func (h *ProvidersHandler) Delete(c *gin.Context) {
	if err := h.registry.Delete(c.Request.Context(), c.Param("providerId")); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Test handles POST /llm/providers/:providerId/test
// @Summary Test a provider
// @Description Sends a one-token completion through the provider's adapter
// @Tags Providers
// @Accept json
// @Produce json
// @Param providerId path string true "Provider ID"
// @Param request body dto.TestProviderRequest false "Model to test"
// @Success 200 {object} llm.TestResult
// @Failure 404 {object} dto.ErrorResponse "Provider or model not found"
// @Security BearerAuth
// @Router /api/v1/llm/providers/{providerId}/test [post]
func (h *ProvidersHandler) Test(c *gin.Context) {
	var req dto.TestProviderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
			return
		}
	}

	result, err := h.router.TestProvider(c.Request.Context(), c.Param("providerId"), req.ModelID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
