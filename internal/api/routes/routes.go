// Package routes defines the HTTP routes for the OpsBridge control service.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opsbridge/control-service/internal/api/handlers"
	"github.com/opsbridge/control-service/internal/api/middleware"
	"github.com/opsbridge/control-service/internal/pkg/auth"
)

// Config holds the dependencies for setting up routes.
type Config struct {
	HealthHandler     *handlers.HealthHandler
	LLMHandler        *handlers.LLMHandler
	ProvidersHandler  *handlers.ProvidersHandler
	PromptsHandler    *handlers.PromptsHandler
	UsageHandler      *handlers.UsageHandler
	MonitoringHandler *handlers.MonitoringHandler
	AuthMiddleware    *middleware.AuthMiddleware
	TenantMiddleware  *middleware.TenantMiddleware
	// Realtime serves the websocket endpoint. It authenticates on its own
	// from the token query parameter.
	Realtime http.Handler
}

// Setup configures all routes on the Gin engine.
func Setup(r *gin.Engine, cfg *Config) {
	if cfg.Realtime != nil {
		r.GET("/ws", gin.WrapH(cfg.Realtime))
	}

	v1 := r.Group("/api/v1")
	{
		// Health check routes (no auth required)
		v1.GET("/health", cfg.HealthHandler.Health)
		v1.GET("/ready", cfg.HealthHandler.Ready)
		v1.GET("/live", cfg.HealthHandler.Live)

		protected := v1.Group("")
		protected.Use(cfg.AuthMiddleware.Authenticate())

		superAdmin := middleware.RequireRole(auth.RoleSuperAdmin)
		admin := middleware.RequireRole(auth.RoleAdmin)

		llm := protected.Group("/llm")
		{
			llm.GET("/providers/status", cfg.ProvidersHandler.Statuses)

			providers := llm.Group("/providers", superAdmin)
			{
				providers.GET("", cfg.ProvidersHandler.List)
				providers.POST("", cfg.ProvidersHandler.Create)
				providers.GET("/:providerId", cfg.ProvidersHandler.Get)
				providers.PUT("/:providerId", cfg.ProvidersHandler.Update)
				providers.DELETE("/:providerId", cfg.ProvidersHandler.Delete)
				providers.POST("/:providerId/test", cfg.ProvidersHandler.Test)
			}

			tenant := llm.Group("", cfg.TenantMiddleware.ExtractTenant())
			{
				tenant.POST("/query", cfg.LLMHandler.Query)

				prompts := tenant.Group("/prompts")
				{
					prompts.GET("", cfg.PromptsHandler.List)
					prompts.POST("", cfg.PromptsHandler.Create)
					prompts.GET("/:promptId", cfg.PromptsHandler.Get)
					prompts.PUT("/:promptId", cfg.PromptsHandler.Update)
					prompts.DELETE("/:promptId", cfg.PromptsHandler.Delete)
					prompts.POST("/:promptId/versions", cfg.PromptsHandler.CreateVersion)
					prompts.POST("/:promptId/revert/:version", cfg.PromptsHandler.Revert)
				}

				tenant.GET("/usage", cfg.UsageHandler.Get)
				tenant.PUT("/usage/settings", admin, cfg.UsageHandler.UpdateSettings)
				tenant.POST("/usage/alerts/:alertId/acknowledge", cfg.UsageHandler.AcknowledgeAlert)
			}
		}

		monitoring := protected.Group("/monitoring")
		{
			monitoring.GET("/system/state", superAdmin, cfg.MonitoringHandler.SystemState)
			monitoring.POST("/events", admin, cfg.MonitoringHandler.PublishEvent)

			sessions := monitoring.Group("/automation/sessions", cfg.TenantMiddleware.ExtractTenant())
			{
				sessions.GET("", cfg.MonitoringHandler.ListSessions)
				sessions.POST("", cfg.MonitoringHandler.StartSession)
				sessions.GET("/:sessionId", cfg.MonitoringHandler.GetSession)
				sessions.PUT("/:sessionId", cfg.MonitoringHandler.UpdateSession)
				sessions.POST("/:sessionId/end", cfg.MonitoringHandler.EndSession)
			}
		}
	}

	r.NoRoute(middleware.NotFound())
	r.NoMethod(middleware.MethodNotAllowed())
}

// SetupWithMiddleware sets up routes with common middleware.
func SetupWithMiddleware(r *gin.Engine, cfg *Config, loggingMw *middleware.LoggingMiddleware, errorMw *middleware.ErrorMiddleware, cors middleware.CORSConfig) {
	r.Use(loggingMw.RequestLogger())
	r.Use(loggingMw.Logger())
	r.Use(errorMw.Recovery())
	r.Use(middleware.NewCORSMiddleware(cors))

	Setup(r, cfg)
}
