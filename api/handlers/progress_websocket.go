package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/yourusername/ytmux/internal/app"
	"go.uber.org/zap"
)

// ProgressWebSocketHandler streams live download progress over WebSocket
type ProgressWebSocketHandler struct {
	queueMgr *app.QueueManager
	hub      *app.ProgressHub
	logger   *zap.Logger
}

// NewProgressWebSocketHandler creates a new progress stream handler
func NewProgressWebSocketHandler(queueMgr *app.QueueManager, hub *app.ProgressHub, log *zap.Logger) *ProgressWebSocketHandler {
	return &ProgressWebSocketHandler{
		queueMgr: queueMgr,
		hub:      hub,
		logger:   log,
	}
}

// HandleDownload handles GET /api/v1/downloads/:id/progress. The stream ends
// after the download's final update. A download that already finished gets a
// single update built from its record.
func (h *ProgressWebSocketHandler) HandleDownload(c *gin.Context) {
	id := c.Param("id")
	download, err := h.queueMgr.GetDownload(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	// subscribe before re-checking the record so no transition is missed
	updates, unsubscribe := h.hub.Subscribe(id)
	defer unsubscribe()
	if current, err := h.queueMgr.GetDownload(id); err == nil {
		download = current
	}

	if download.IsTerminal() {
		writeJSON(conn, app.ProgressUpdate{
			DownloadID: download.ID,
			Status:     download.Status,
			Stage:      download.Stage,
			Percent:    download.Progress,
			FilePath:   download.FilePath,
			Error:      download.ErrorMessage,
			Time:       download.UpdatedAt,
		})
		return
	}

	h.stream(c.Request.Context(), conn, updates, true)
}

// HandleAll handles GET /api/v1/progress, streaming updates for every download
func (h *ProgressWebSocketHandler) HandleAll(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.hub.Subscribe("")
	defer unsubscribe()

	h.stream(c.Request.Context(), conn, updates, false)
}

func (h *ProgressWebSocketHandler) stream(ctx context.Context, conn *websocket.Conn, updates <-chan app.ProgressUpdate, stopOnFinal bool) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go readUntilClosed(conn, cancel)

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeJSON(conn, u); err != nil {
				h.logger.Debug("Failed to send progress update", zap.Error(err))
				return
			}
			if stopOnFinal && u.Final() {
				return
			}
		case <-ticker.C:
			if err := writePing(conn); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
