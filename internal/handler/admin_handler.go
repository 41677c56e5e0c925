package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"segment-cache/internal/cache"
	"segment-cache/pkg/logger"
)

// CacheInspector is the read-only view of the engine the admin endpoints need
type CacheInspector interface {
	State() cache.State
	Backend() string
	Stats() cache.Stats
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Backend   string    `json:"backend"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// AdminHandler serves health and stats for a running cache.
// It exposes no access to cached values.
type AdminHandler struct {
	cache   CacheInspector
	logger  *logger.Logger
	version string
}

// NewAdminHandler creates a new admin handler with dependencies
func NewAdminHandler(cache CacheInspector, logger *logger.Logger, version string) *AdminHandler {
	return &AdminHandler{
		cache:   cache,
		logger:  logger,
		version: version,
	}
}

// Health handles GET /health
// Returns 503 unless the cache is Ready so orchestrators stop routing to it
func (h *AdminHandler) Health(c *gin.Context) {
	state := h.cache.State()

	resp := HealthResponse{
		Status:    "healthy",
		Service:   "segment-cache",
		Version:   h.version,
		Backend:   h.cache.Backend(),
		State:     state.String(),
		Timestamp: time.Now().UTC(),
	}

	if state != cache.StateReady {
		resp.Status = "unavailable"
		h.logger.Warnw("Health check while cache not ready", "state", state.String())
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Stats handles GET /api/v1/stats
func (h *AdminHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats())
}

// NotFound handles unknown routes
func (h *AdminHandler) NotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   "not_found",
		Message: "endpoint not found",
		Code:    http.StatusNotFound,
	})
}
