package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/opsbridge/control-service/internal/api/dto"
	"github.com/opsbridge/control-service/internal/api/middleware"
	"github.com/opsbridge/control-service/internal/core/docdb"
	"github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/services/prompts"
)

// PromptsHandler manages prompt templates.
type PromptsHandler struct {
	service *prompts.Service
}

// NewPromptsHandler creates a new PromptsHandler.
func NewPromptsHandler(service *prompts.Service) *PromptsHandler {
	return &PromptsHandler{service: service}
}

// List handles GET /llm/prompts
// @Summary List prompts
// @Description Lists the tenant's prompts together with system prompts
// @Tags Prompts
// @Produce json
// @Param category query string false "Category filter"
// @Param active query bool false "Only active prompts"
// @Param limit query int false "Maximum number of prompts"
// @Param offset query int false "Number of prompts to skip"
// @Success 200 {object} dto.PromptsResponse
// @Security BearerAuth
// @Router /api/v1/llm/prompts [get]
func (h *PromptsHandler) List(c *gin.Context) {
	opts := &docdb.ListPromptsOptions{
		OrganizationID: middleware.GetTenantID(c),
		IncludeSystem:  true,
		Category:       models.PromptCategory(c.Query("category")),
		ActiveOnly:     c.Query("active") == "true",
		OrderBy:        docdb.SortOrderDesc,
	}
	if limit, err := strconv.ParseInt(c.Query("limit"), 10, 64); err == nil && limit > 0 {
		opts.Limit = limit
	}
	if offset, err := strconv.ParseInt(c.Query("offset"), 10, 64); err == nil && offset > 0 {
		opts.Skip = offset
	}

	list, err := h.service.List(c.Request.Context(), opts)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.PromptsResponse{Prompts: list, Total: len(list)})
}

// Get handles GET /llm/prompts/:promptId
// @Summary Get a prompt
// @Tags Prompts
// @Produce json
// @Param promptId path string true "Prompt ID"
// @Success 200 {object} models.Prompt
// @Failure 404 {object} dto.ErrorResponse "Prompt not found"
// @Security BearerAuth
// @Router /api/v1/llm/prompts/{promptId} [get]
func (h *PromptsHandler) Get(c *gin.Context) {
	p, err := h.visible(c)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Create handles POST /llm/prompts
// @Summary Create a prompt
// @Tags Prompts
// @Accept json
// @Produce json
// @Param request body dto.CreatePromptRequest true "Prompt"
// @Success 201 {object} models.Prompt
// @Failure 400 {object} dto.ErrorResponse "Validation error"
// @Failure 403 {object} dto.ErrorResponse "System prompts require super_admin"
// @Security BearerAuth
// @Router /api/v1/llm/prompts [post]
func (h *PromptsHandler) Create(c *gin.Context) {
	var req dto.CreatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}
	if req.System && !middleware.IsSuperAdmin(c) {
		middleware.HandleError(c, errors.NewForbiddenError("only super admins may create system prompts"))
		return
	}

	p := &models.Prompt{
		Name:        req.Name,
		Description: req.Description,
		Content:     req.Content,
		Category:    req.Category,
		Tags:        req.Tags,
		IsActive:    req.IsActive == nil || *req.IsActive,
		CreatedBy:   middleware.GetUserID(c),
	}
	if !req.System {
		p.OrganizationID = middleware.GetTenantID(c)
	}

	created, err := h.service.Create(c.Request.Context(), p)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Update handles PUT /llm/prompts/:promptId
// @Summary Update a prompt
// @Description A content change bumps the version and archives the previous content
// @Tags Prompts
// @Accept json
// @Produce json
// @Param promptId path string true "Prompt ID"
// @Param request body dto.UpdatePromptRequest true "Changes"
// @Success 200 {object} models.Prompt
// @Failure 400 {object} dto.ErrorResponse "Validation error"
// @Failure 403 {object} dto.ErrorResponse "Forbidden"
// @Failure 404 {object} dto.ErrorResponse "Prompt not found"
// @Security BearerAuth
// @Router /api/v1/llm/prompts/{promptId} [put]
func (h *PromptsHandler) Update(c *gin.Context) {
	var req dto.UpdatePromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}
	if _, err := h.writable(c); err != nil {
		middleware.HandleError(c, err)
		return
	}

	p, err := h.service.Update(c.Request.Context(), c.Param("promptId"), middleware.GetUserID(c), &prompts.Update{
		Name:         req.Name,
		Description:  req.Description,
		Content:      req.Content,
		Category:     req.Category,
		Tags:         req.Tags,
		IsActive:     req.IsActive,
		ChangeReason: req.ChangeReason,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// CreateVersion handles POST /llm/prompts/:promptId/versions
// @Summary Create a prompt version
// @Tags Prompts
// @Accept json
// @Produce json
// @Param promptId path string true "Prompt ID"
// @Param request body dto.CreatePromptVersionRequest true "New content"
// @Success 200 {object} models.Prompt
// @Failure 404 {object} dto.ErrorResponse "Prompt not found"
// @Security BearerAuth
// @Router /api/v1/llm/prompts/{promptId}/versions [post]
func (h *PromptsHandler) CreateVersion(c *gin.Context) {
	var req dto.CreatePromptVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}
	if _, err := h.writable(c); err != nil {
		middleware.HandleError(c, err)
		return
	}

	p, err := h.service.CreateNewVersion(c.Request.Context(), c.Param("promptId"), req.Content, middleware.GetUserID(c), req.ChangeReason)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Revert handles POST /llm/prompts/:promptId/revert/:version
// @Summary Revert a prompt
// @Description Restores the content of an earlier version as a new version
// @Tags Prompts
// @Produce json
// @Param promptId path string true "Prompt ID"
// @Param version path int true "Version to restore"
// @Success 200 {object} models.Prompt
// @Failure 400 {object} dto.ErrorResponse "Invalid version"
// @Failure 404 {object} dto.ErrorResponse "Prompt or version not found"
// @Security BearerAuth
// @Router /api/v1/llm/prompts/{promptId}/revert/{version} [post]
func (h *PromptsHandler) Revert(c *gin.Context) {
	version, err := strconv.Atoi(c.Param("version"))
	if err != nil || version < 1 {
		middleware.HandleError(c, errors.NewValidationError("invalid version", c.Param("version")))
		return
	}
	if _, err := h.writable(c); err != nil {
		middleware.HandleError(c, err)
		return
	}

	p, err := h.service.RevertToVersion(c.Request.Context(), c.Param("promptId"), version, middleware.GetUserID(c))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Delete handles DELETE /llm/prompts/:promptId
// @Summary Delete a prompt
// @Tags Prompts
// @Param promptId path string true "Prompt ID"
// @Success 204
// @Failure 403 {object} dto.ErrorResponse "Forbidden"
// @Failure 404 {object} dto.ErrorResponse "Prompt not found"
// @Security BearerAuth
// @Router /api/v1/llm/prompts/{promptId} [delete]
func (h *PromptsHandler) Delete(c *gin.Context) {
	if _, err := h.writable(c); err != nil {
		middleware.HandleError(c, err)
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("promptId")); err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// visible loads the path prompt if the tenant can read it. Other tenants'
// prompts are reported as not found.
func (h *PromptsHandler) visible(c *gin.Context) (*models.Prompt, error) {
	id := c.Param("promptId")
	p, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if p == nil || (!middleware.IsSuperAdmin(c) && !p.VisibleTo(middleware.GetTenantID(c))) {
		return nil, errors.NewNotFoundError("prompt", id)
	}
	return p, nil
}

// writable is visible plus the rule that only super admins change system
// prompts.
func (h *PromptsHandler) writable(c *gin.Context) (*models.Prompt, error) {
	p, err := h.visible(c)
	if err != nil {
		return nil, err
	}
	if p.IsSystem() && !middleware.IsSuperAdmin(c) {
		return nil, errors.NewForbiddenError("only super admins may modify system prompts")
	}
	return p, nil
}
