package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsbridge/control-service/internal/api/dto"
	"github.com/opsbridge/control-service/internal/api/middleware"
	"github.com/opsbridge/control-service/internal/core/events"
	"github.com/opsbridge/control-service/internal/domain/errors"
	"github.com/opsbridge/control-service/internal/domain/models"
	"github.com/opsbridge/control-service/internal/services/automation"
	"github.com/opsbridge/control-service/internal/services/realtime"
)

// MonitoringHandler drives automation sessions and the realtime broker.
type MonitoringHandler struct {
	sessions *automation.Registry
	broker   *realtime.Broker
	system   *realtime.SystemMonitor
}

// NewMonitoringHandler creates a new MonitoringHandler.
func NewMonitoringHandler(sessions *automation.Registry, broker *realtime.Broker, system *realtime.SystemMonitor) *MonitoringHandler {
	return &MonitoringHandler{sessions: sessions, broker: broker, system: system}
}

// StartSession handles POST /monitoring/automation/sessions
// @Summary Start an automation session
// @Tags Monitoring
// @Accept json
// @Produce json
// @Param request body dto.StartSessionRequest true "Session"
// @Success 201 {object} models.AutomationSession
// @Failure 400 {object} dto.ErrorResponse "Validation error"
// @Failure 409 {object} dto.ErrorResponse "Session id already in use"
// @Security BearerAuth
// @Router /api/v1/monitoring/automation/sessions [post]
func (h *MonitoringHandler) StartSession(c *gin.Context) {
	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	tc := middleware.GetTenantContext(c)
	s, err := h.sessions.Start(c.Request.Context(), &automation.StartRequest{
		ID:             req.SessionID,
		Name:           req.Name,
		Description:    req.Description,
		OrganizationID: tc.OrganizationID,
		UserID:         tc.UserID,
	})
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// UpdateSession handles PUT /monitoring/automation/sessions/:sessionId
// @Summary Update an automation session
// @Tags Monitoring
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body models.SessionUpdate true "Changes"
// @Success 200 {object} models.AutomationSession
// @Failure 400 {object} dto.ErrorResponse "Validation error"
// @Failure 404 {object} dto.ErrorResponse "Session not found"
// @Security BearerAuth
// @Router /api/v1/monitoring/automation/sessions/{sessionId} [put]
func (h *MonitoringHandler) UpdateSession(c *gin.Context) {
	var req models.SessionUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}
	if _, err := h.owned(c); err != nil {
		middleware.HandleError(c, err)
		return
	}

	s, err := h.sessions.Update(c.Request.Context(), c.Param("sessionId"), &req)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// EndSession handles POST /monitoring/automation/sessions/:sessionId/end
// @Summary End an automation session
// @Tags Monitoring
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body models.SessionResult true "Result"
// @Success 200 {object} models.AutomationSession
// @Failure 404 {object} dto.ErrorResponse "Session not found"
// @Security BearerAuth
// @Router /api/v1/monitoring/automation/sessions/{sessionId}/end [post]
func (h *MonitoringHandler) EndSession(c *gin.Context) {
	var req models.SessionResult
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}
	if _, err := h.owned(c); err != nil {
		middleware.HandleError(c, err)
		return
	}

	s, err := h.sessions.End(c.Request.Context(), c.Param("sessionId"), &req)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// GetSession handles GET /monitoring/automation/sessions/:sessionId
// @Summary Get an automation session
// @Description Returns the session with its last 10 log lines
// @Tags Monitoring
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} models.AutomationSession
// @Failure 404 {object} dto.ErrorResponse "Session not found"
// @Security BearerAuth
// @Router /api/v1/monitoring/automation/sessions/{sessionId} [get]
func (h *MonitoringHandler) GetSession(c *gin.Context) {
	s, err := h.owned(c)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ListSessions handles GET /monitoring/automation/sessions
// @Summary List automation sessions
// @Tags Monitoring
// @Produce json
// @Success 200 {object} dto.SessionsResponse
// @Security BearerAuth
// @Router /api/v1/monitoring/automation/sessions [get]
func (h *MonitoringHandler) ListSessions(c *gin.Context) {
	list := h.sessions.List(middleware.GetTenantID(c))
	c.JSON(http.StatusOK, dto.SessionsResponse{Sessions: list, Total: len(list)})
}

// PublishEvent handles POST /monitoring/events
// @Summary Publish a realtime event
// @Description Delivers an event to every connection subscribed to the topic and params
// @Tags Monitoring
// @Accept json
// @Produce json
// @Param request body dto.PublishEventRequest true "Event"
// @Success 200 {object} dto.PublishEventResponse
// @Failure 403 {object} dto.ErrorResponse "Topic not accessible"
// @Security BearerAuth
// @Router /api/v1/monitoring/events [post]
func (h *MonitoringHandler) PublishEvent(c *gin.Context) {
	var req dto.PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	params := events.Params(req.Params)
	tc := middleware.GetTenantContext(c)
	publisher := &realtime.Principal{UserID: tc.UserID, OrganizationID: tc.OrganizationID, Role: tc.Role}
	if !(realtime.TopicPolicy{}).Allow(publisher, req.Topic, params) {
		middleware.HandleError(c, errors.NewForbiddenError("topic not accessible"))
		return
	}

	delivered := h.broker.PublishEvent(req.Topic, params, req.Data)
	c.JSON(http.StatusOK, dto.PublishEventResponse{Delivered: delivered})
}

// SystemState handles GET /monitoring/system/state
// @Summary System state
// @Tags Monitoring
// @Produce json
// @Success 200 {object} realtime.SystemState
// @Failure 403 {object} dto.ErrorResponse "Forbidden"
// @Security BearerAuth
// @Router /api/v1/monitoring/system/state [get]
func (h *MonitoringHandler) SystemState(c *gin.Context) {
	c.JSON(http.StatusOK, h.system.Snapshot())
}

// owned loads the path session if it belongs to the caller's tenant. Other
// tenants' sessions are reported as not found.
func (h *MonitoringHandler) owned(c *gin.Context) (*models.AutomationSession, error) {
	id := c.Param("sessionId")
	s, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if !middleware.IsSuperAdmin(c) && s.OrganizationID != middleware.GetTenantID(c) {
		return nil, errors.NewNotFoundError("session", id)
	}
	return s, nil
}
