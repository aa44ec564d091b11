package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/ytmux/api/handlers"
	"github.com/yourusername/ytmux/api/middleware"
	"github.com/yourusername/ytmux/internal/app"
	"github.com/yourusername/ytmux/pkg/logger"
)

// RouterConfig holds everything the HTTP API is built from
type RouterConfig struct {
	QueueMgr           *app.QueueManager
	DownloadMgr        *app.DownloadManager
	Hub                *app.ProgressHub
	MultiLogger        *logger.MultiLogger
	Logger             *zap.Logger
	LogsDir            string
	DefaultDestination string
	ToolsErr           error
}

// SetupRouter sets up the HTTP router
func SetupRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(cfg.Logger, cfg.MultiLogger))
	router.Use(middleware.Recovery(cfg.Logger, cfg.MultiLogger))
	router.Use(middleware.CORS())

	healthHandler := handlers.NewHealthHandler(cfg.QueueMgr, cfg.DownloadMgr, cfg.ToolsErr)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	v1 := router.Group("/api/v1")
	{
		downloadHandler := handlers.NewDownloadHandler(cfg.QueueMgr, cfg.DownloadMgr, cfg.DefaultDestination, cfg.Logger)
		progressHandler := handlers.NewProgressWebSocketHandler(cfg.QueueMgr, cfg.Hub, cfg.Logger)

		downloads := v1.Group("/downloads")
		{
			downloads.POST("", downloadHandler.AddDownload)
			downloads.GET("", downloadHandler.ListDownloads)
			downloads.GET("/stats", downloadHandler.GetStats)
			downloads.GET("/:id", downloadHandler.GetDownload)
			downloads.GET("/:id/progress", progressHandler.HandleDownload)
			downloads.POST("/:id/cancel", downloadHandler.CancelDownload)
			downloads.POST("/:id/retry", downloadHandler.RetryDownload)
			downloads.DELETE("/:id", downloadHandler.DeleteDownload)
		}

		v1.GET("/jobs", downloadHandler.ListJobs)
		v1.GET("/jobs/:id", downloadHandler.GetJob)
		v1.GET("/progress", progressHandler.HandleAll)

		logHandler := handlers.NewLogHandler(cfg.LogsDir)
		logStream := handlers.NewLogWebSocketHandler(cfg.LogsDir, cfg.Logger)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/export", logHandler.ExportLogs)
			logs.GET("/:category/stream", logStream.HandleWebSocket)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router
}
