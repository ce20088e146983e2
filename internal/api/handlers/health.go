// Package handlers provides HTTP handlers for the API.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opsbridge/control-service/internal/core/cache"
	"github.com/opsbridge/control-service/internal/core/docdb"
)

const (
	componentHealthy   = "healthy"
	componentUnhealthy = "unhealthy"
	componentDisabled  = "disabled"

	probeTimeout = 2 * time.Second
)

type dependency struct {
	name string
	// ping is nil for a dependency that is not configured.
	ping func(ctx context.Context) error
}

// HealthHandler reports on the backing stores.
type HealthHandler struct {
	deps []dependency
}

// NewHealthHandler creates a new HealthHandler. cacheClient may be nil when
// no cache is configured. Dependencies are probed in order: cache, docdb.
func NewHealthHandler(cacheClient cache.Client, docDBClient docdb.Client) *HealthHandler {
	cacheDep := dependency{name: "cache"}
	if cacheClient != nil {
		cacheDep.ping = cacheClient.Ping
	}
	return &HealthHandler{deps: []dependency{
		cacheDep,
		{name: "docdb", ping: docDBClient.Ping},
	}}
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// ReadyResponse is the readiness probe body. Reason names the first
// dependency that failed.
type ReadyResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Health handles the /health endpoint.
// @Summary Health check
// @Description Probes every dependency and reports each one's status
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Service healthy"
// @Failure 503 {object} HealthResponse "Service unhealthy"
// @Router /api/v1/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: componentHealthy, Components: make(map[string]string, len(h.deps))}
	for _, d := range h.deps {
		state := probe(c.Request.Context(), d)
		resp.Components[d.name] = state
		if state == componentUnhealthy {
			resp.Status = componentUnhealthy
		}
	}

	code := http.StatusOK
	if resp.Status != componentHealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}

// Ready handles the /ready endpoint. It stops at the first failing
// dependency.
// @Summary Readiness check
// @Description Returns 200 if the service is ready to accept traffic
// @Tags Health
// @Produce json
// @Success 200 {object} ReadyResponse "Service ready"
// @Failure 503 {object} ReadyResponse "Service not ready"
// @Router /api/v1/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	for _, d := range h.deps {
		if probe(c.Request.Context(), d) == componentUnhealthy {
			c.JSON(http.StatusServiceUnavailable, ReadyResponse{
				Status: "not ready",
				Reason: d.name + " unavailable",
			})
			return
		}
	}
	c.JSON(http.StatusOK, ReadyResponse{Status: "ready"})
}

// Live handles the /live endpoint.
// @Summary Liveness check
// @Description Returns 200 while the process is serving
// @Tags Health
// @Produce json
// @Success 200 {object} ReadyResponse "Service alive"
// @Router /api/v1/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, ReadyResponse{Status: "alive"})
}

func probe(ctx context.Context, d dependency) string {
	if d.ping == nil {
		return componentDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := d.ping(ctx); err != nil {
		return componentUnhealthy
	}
	return componentHealthy
}
