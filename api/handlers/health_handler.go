package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/ytmux/internal/app"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// HealthHandler handles health check requests
type HealthHandler struct {
	queueMgr    *app.QueueManager
	downloadMgr *app.DownloadManager
	toolsErr    error
}

// NewHealthHandler creates a new health handler. toolsErr is the result of the
// startup check for yt-dlp and ffmpeg.
func NewHealthHandler(queueMgr *app.QueueManager, downloadMgr *app.DownloadManager, toolsErr error) *HealthHandler {
	return &HealthHandler{
		queueMgr:    queueMgr,
		downloadMgr: downloadMgr,
		toolsErr:    toolsErr,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Queue   struct {
		Running    bool `json:"running"`
		ActiveJobs int  `json:"active_jobs"`
	} `json:"queue"`
	Tools struct {
		Available bool   `json:"available"`
		Error     string `json:"error,omitempty"`
	} `json:"tools"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:  "ok",
		Version: Version,
	}
	response.Queue.Running = h.queueMgr.IsRunning()
	response.Queue.ActiveJobs = len(h.downloadMgr.ActiveJobs())
	response.Tools.Available = h.toolsErr == nil
	if h.toolsErr != nil {
		response.Tools.Error = h.toolsErr.Error()
	}

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.toolsErr != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": h.toolsErr.Error(),
		})
		return
	}

	if !h.queueMgr.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "queue manager not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
