package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	index IndexStatsProvider
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(index IndexStatsProvider) *HealthHandler {
	return &HealthHandler{index: index}
}

// Health returns the health status of the service and whether the index is warm
func (h *HealthHandler) Health(c *gin.Context) {
	stats := h.index.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"index_loaded": stats.Loaded,
		"encoder":      stats.EncoderID,
	})
}
