package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/armscan/internal/api/handler"
	"github.com/timmy/armscan/internal/api/middleware"
	"github.com/timmy/armscan/internal/config"
	"github.com/timmy/armscan/internal/logger"
	"github.com/timmy/armscan/internal/service"
)

// Services groups what the HTTP surface calls into.
type Services struct {
	Recognizer handler.Recognizer
	Index      handler.IndexManager
	Catalogs   *service.CatalogProvider
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(svc *Services, cfg *config.ServerConfig, log *logger.Logger) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(cfg.CORS))

	// Create handlers
	healthHandler := handler.NewHealthHandler(svc.Index)
	recognizeHandler := handler.NewRecognizeHandler(svc.Recognizer)
	catalogHandler := handler.NewCatalogHandler(svc.Catalogs)
	indexHandler := handler.NewIndexHandler(svc.Index)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Recognition
		v1.POST("/recognize", recognizeHandler.Recognize)

		// Catalog
		v1.GET("/catalog", catalogHandler.ListRecords)

		// Reference index
		v1.GET("/index", indexHandler.GetStatus)
		v1.POST("/index/rebuild", indexHandler.Rebuild)
	}

	return r
}
