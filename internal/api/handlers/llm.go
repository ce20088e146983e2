package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsbridge/control-service/internal/api/dto"
	"github.com/opsbridge/control-service/internal/api/middleware"
	"github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/services/llm"
)

// LLMHandler serves completion requests.
type LLMHandler struct {
	router *llm.Router
}

// NewLLMHandler creates a new LLMHandler.
func NewLLMHandler(router *llm.Router) *LLMHandler {
	return &LLMHandler{router: router}
}

// Query handles POST /llm/query
// @Summary Send a prompt
// @Description Routes a prompt to the tenant's provider, falling back along the provider chain on upstream failure
// @Tags LLM
// @Accept json
// @Produce json
// @Param request body dto.QueryRequest true "Prompt request"
// @Success 200 {object} llm.Response
// @Failure 400 {object} dto.ErrorResponse "Validation error"
// @Failure 404 {object} dto.ErrorResponse "Prompt or model not found"
// @Failure 429 {object} dto.ErrorResponse "Quota exceeded"
// @Failure 502 {object} dto.ErrorResponse "Upstream failure"
// @Failure 503 {object} dto.ErrorResponse "No provider available"
// @Security BearerAuth
// @Router /api/v1/llm/query [post]
func (h *LLMHandler) Query(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	tc := middleware.GetTenantContext(c)
	resp, err := h.router.SendPrompt(c.Request.Context(), &llm.Request{
		OrganizationID: tc.OrganizationID,
		UserID:         tc.UserID,
		PromptID:       req.PromptID,
		PromptContent:  req.PromptContent,
		ProviderID:     req.ProviderID,
		ModelID:        req.ModelID,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
		SystemMessage:  req.SystemMessage,
		Variables:      req.Variables,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
