package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/armscan/internal/api/middleware"
	"github.com/timmy/armscan/internal/domain"
	"github.com/timmy/armscan/internal/logger"
)

// IndexStatsProvider reports the state of the reference index.
type IndexStatsProvider interface {
	Stats() domain.IndexStats
}

// IndexManager is the part of the index service exposed over HTTP.
type IndexManager interface {
	IndexStatsProvider
	Rebuild(ctx context.Context) (*domain.ReferenceIndex, error)
}

// IndexHandler reports on and rebuilds the reference index.
type IndexHandler struct {
	index IndexManager

	// Rebuild state
	mu            sync.RWMutex
	isRunning     bool
	lastRunTime   time.Time
	lastRunStatus string
}

// NewIndexHandler creates a new index handler.
// Parameters:
//   - index: index service instance.
// Returns:
//   - *IndexHandler: initialized handler.
func NewIndexHandler(index IndexManager) *IndexHandler {
	return &IndexHandler{index: index}
}

// IndexStatusResponse represents the index state.
type IndexStatusResponse struct {
	domain.IndexStats
	IsRebuilding  bool   `json:"is_rebuilding"`
	LastRunTime   string `json:"last_rebuild_time,omitempty"`
	LastRunStatus string `json:"last_rebuild_status,omitempty"`
}

// GetStatus handles GET /api/v1/index.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *IndexHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.status())
}

// Rebuild handles POST /api/v1/index/rebuild.
// Only one rebuild runs at a time; a concurrent request gets 409.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *IndexHandler) Rebuild(c *gin.Context) {
	h.mu.Lock()
	if h.isRunning {
		h.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{
			"error": "Index rebuild already in progress",
		})
		return
	}
	h.isRunning = true
	h.mu.Unlock()

	start := time.Now()
	idx, err := h.index.Rebuild(c.Request.Context())

	h.mu.Lock()
	h.isRunning = false
	h.lastRunTime = start
	if err != nil {
		h.lastRunStatus = "failed: " + err.Error()
	} else {
		h.lastRunStatus = "completed"
	}
	h.mu.Unlock()

	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Index rebuild failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Rebuild failed: " + err.Error(),
		})
		return
	}

	middleware.GetLogger(c).WithFields(logger.Fields{
		logger.FieldCount:      len(idx.Entries),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info("Index rebuilt")
	c.JSON(http.StatusOK, h.status())
}

func (h *IndexHandler) status() *IndexStatusResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()

	resp := &IndexStatusResponse{
		IndexStats:    h.index.Stats(),
		IsRebuilding:  h.isRunning,
		LastRunStatus: h.lastRunStatus,
	}
	if !h.lastRunTime.IsZero() {
		resp.LastRunTime = h.lastRunTime.Format(time.RFC3339)
	}
	return resp
}
