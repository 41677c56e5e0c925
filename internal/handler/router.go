package handler

import (
	"github.com/gin-gonic/gin"

	"segment-cache/internal/config"
	"segment-cache/pkg/logger"
)

// NewRouter configures the Gin router with middleware and admin routes
func NewRouter(h *AdminHandler, cfg *config.Config, log *logger.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(SecurityHeadersMiddleware())
	router.Use(RateLimitMiddleware(cfg.RateLimitPerMinute))

	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stats", h.Stats)
	}

	router.NoRoute(h.NotFound)

	return router
}
