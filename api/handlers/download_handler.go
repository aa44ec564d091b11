package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/ytmux/internal/app"
	"github.com/yourusername/ytmux/internal/domain"
	"go.uber.org/zap"
)

// DownloadHandler handles download-related HTTP requests
type DownloadHandler struct {
	queueMgr           *app.QueueManager
	downloadMgr        *app.DownloadManager
	defaultDestination string
	logger             *zap.Logger
}

// NewDownloadHandler creates a new download handler. Requests without a
// destination directory use defaultDestination.
func NewDownloadHandler(queueMgr *app.QueueManager, downloadMgr *app.DownloadManager, defaultDestination string, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		queueMgr:           queueMgr,
		downloadMgr:        downloadMgr,
		defaultDestination: defaultDestination,
		logger:             logger,
	}
}

// AddDownloadRequest represents a request to add a download
type AddDownloadRequest struct {
	URL            string `json:"url" binding:"required"`
	DestinationDir string `json:"destination_dir,omitempty"`
}

// errorStatus maps an app error to an HTTP status
func errorStatus(err error) int {
	switch {
	case errors.Is(err, app.ErrDownloadNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, app.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AddDownload handles POST /api/v1/downloads
func (h *DownloadHandler) AddDownload(c *gin.Context) {
	var req AddDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dest := req.DestinationDir
	if dest == "" {
		dest = h.defaultDestination
	}

	download, err := h.queueMgr.AddDownload(req.URL, dest)
	if err != nil {
		status := errorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("Failed to add download", zap.Error(err))
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, download)
}

// GetDownload handles GET /api/v1/downloads/:id
func (h *DownloadHandler) GetDownload(c *gin.Context) {
	download, err := h.queueMgr.GetDownload(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}

	c.JSON(http.StatusOK, download)
}

// ListDownloads handles GET /api/v1/downloads
func (h *DownloadHandler) ListDownloads(c *gin.Context) {
	filters := make(map[string]interface{})

	if status := c.Query("status"); status != "" {
		if !domain.ValidateStatus(domain.DownloadStatus(status)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status: " + status})
			return
		}
		filters["status"] = status
	}
	if dest := c.Query("destination_dir"); dest != "" {
		filters["destination_dir"] = dest
	}
	if kind := c.Query("error_kind"); kind != "" {
		filters["error_kind"] = kind
	}

	downloads, err := h.queueMgr.ListDownloads(filters)
	if err != nil {
		h.logger.Error("Failed to list downloads", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, downloads)
}

// GetStats handles GET /api/v1/downloads/stats
func (h *DownloadHandler) GetStats(c *gin.Context) {
	stats, err := h.queueMgr.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CancelDownload handles POST /api/v1/downloads/:id/cancel
func (h *DownloadHandler) CancelDownload(c *gin.Context) {
	id := c.Param("id")

	if err := h.downloadMgr.CancelDownload(id); err != nil {
		h.logger.Warn("Failed to cancel download", zap.String("id", id), zap.Error(err))
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "cancellation requested"})
}

// RetryDownload handles POST /api/v1/downloads/:id/retry
func (h *DownloadHandler) RetryDownload(c *gin.Context) {
	id := c.Param("id")

	if err := h.downloadMgr.RetryDownload(c.Request.Context(), id); err != nil {
		h.logger.Warn("Failed to retry download", zap.String("id", id), zap.Error(err))
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "download queued for retry"})
}

// DeleteDownload handles DELETE /api/v1/downloads/:id
func (h *DownloadHandler) DeleteDownload(c *gin.Context) {
	id := c.Param("id")

	if err := h.downloadMgr.DeleteDownload(id); err != nil {
		h.logger.Warn("Failed to delete download", zap.String("id", id), zap.Error(err))
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "download deleted"})
}

// ListJobs handles GET /api/v1/jobs
func (h *DownloadHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.downloadMgr.ActiveJobs())
}

// GetJob handles GET /api/v1/jobs/:id
func (h *DownloadHandler) GetJob(c *gin.Context) {
	job, ok := h.downloadMgr.Job(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no running job for download"})
		return
	}

	c.JSON(http.StatusOK, job.Snapshot())
}
