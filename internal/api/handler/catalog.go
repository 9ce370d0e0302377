package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/armscan/internal/service"
)

// CatalogHandler serves the weapon catalog.
type CatalogHandler struct {
	catalogs *service.CatalogProvider
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(catalogs *service.CatalogProvider) *CatalogHandler {
	return &CatalogHandler{catalogs: catalogs}
}

// ListRecords handles GET /api/v1/catalog.
func (h *CatalogHandler) ListRecords(c *gin.Context) {
	cat, err := h.catalogs.Get()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Catalog unavailable: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records": cat.Records(),
		"total":   cat.Len(),
	})
}
