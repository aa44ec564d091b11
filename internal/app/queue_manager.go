package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/ytmux/internal/domain"
	"github.com/yourusername/ytmux/pkg/logger"
)

// QueueNotifier receives queue-level notifications
type QueueNotifier interface {
	NotifyDownloadQueued(url string)
	NotifyQueueEmpty()
}

// QueueManager manages the download queue
type QueueManager struct {
	repo        domain.DownloadRepository
	downloadMgr *DownloadManager
	config      *domain.QueueConfig
	multiLogger *logger.MultiLogger
	notifier    QueueNotifier
	mu          sync.RWMutex
	running     bool
	inflight    map[string]struct{}
	stopChan    chan struct{}
	exited      chan struct{}
	cancel      context.CancelFunc
	workerWg    sync.WaitGroup
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	repo domain.DownloadRepository,
	downloadMgr *DownloadManager,
	config *domain.QueueConfig,
	multiLogger *logger.MultiLogger,
) *QueueManager {
	return &QueueManager{
		repo:        repo,
		downloadMgr: downloadMgr,
		config:      config,
		multiLogger: multiLogger,
		inflight:    make(map[string]struct{}),
		stopChan:    make(chan struct{}),
		exited:      make(chan struct{}),
	}
}

// SetNotifier sets the receiver of queued and queue-empty notifications
func (qm *QueueManager) SetNotifier(notifier QueueNotifier) {
	qm.notifier = notifier
}

// Start requeues downloads orphaned by a previous run and starts the queue processor
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	ctx, qm.cancel = context.WithCancel(ctx)
	qm.mu.Unlock()

	reset, err := qm.repo.ResetOrphanedProcessing()
	if err != nil {
		qm.logAppError("Failed to requeue orphaned downloads", zap.Error(err))
	} else if reset > 0 {
		qm.logQueueEvent("orphaned_downloads_requeued", zap.Int64("count", reset))
	}

	qm.logQueueEvent("queue_started")

	qm.workerWg.Add(1)
	go qm.processQueue(ctx)

	return nil
}

// Stop stops the queue processor. Running downloads are cancelled.
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	cancel := qm.cancel
	qm.mu.Unlock()

	qm.logQueueEvent("queue_stopped")
	close(qm.stopChan)
	cancel()
	qm.workerWg.Wait()

	return nil
}

// IsRunning returns whether the queue manager is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.running
}

// WaitForExit returns a channel closed when the queue processor exits on its own
// after the queue stayed empty for the configured wait time
func (qm *QueueManager) WaitForExit() <-chan struct{} {
	return qm.exited
}

// AddDownload adds a download to the queue. A URL that is already queued or
// processing for the same destination, or that completed into a file that still
// exists, returns the existing download.
func (qm *QueueManager) AddDownload(url, destinationDir string) (*domain.Download, error) {
	if destinationDir != "" {
		if abs, err := filepath.Abs(destinationDir); err == nil {
			destinationDir = abs
		}
	}

	req := domain.DownloadRequest{URL: url, DestinationDir: destinationDir}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	existing, err := qm.repo.FindByURL(url, []domain.DownloadStatus{
		domain.StatusQueued,
		domain.StatusProcessing,
		domain.StatusCompleted,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check existing downloads: %w", err)
	}
	if existing != nil && filepath.Clean(existing.DestinationDir) == filepath.Clean(destinationDir) {
		if existing.Status != domain.StatusCompleted || fileExists(existing.FilePath) {
			qm.logQueueEvent("download_deduplicated",
				zap.String("id", existing.ID),
				zap.String("url", url),
				zap.String("status", string(existing.Status)))
			return existing, nil
		}
	}

	download := domain.NewDownload(url, destinationDir)

	if err := qm.repo.Create(download); err != nil {
		return nil, fmt.Errorf("failed to create download: %w", err)
	}

	qm.logQueueEvent("download_added",
		zap.String("id", download.ID),
		zap.String("url", url),
		zap.String("destination", destinationDir))
	if qm.notifier != nil {
		qm.notifier.NotifyDownloadQueued(url)
	}

	return download, nil
}

// GetDownload retrieves a download by ID
func (qm *QueueManager) GetDownload(id string) (*domain.Download, error) {
	download, err := qm.repo.FindByID(id)
	if err != nil || download == nil {
		return nil, fmt.Errorf("%w: %s", ErrDownloadNotFound, id)
	}
	return download, nil
}

// ListDownloads lists all downloads with optional filters
func (qm *QueueManager) ListDownloads(filters map[string]interface{}) ([]*domain.Download, error) {
	return qm.repo.FindAll(filters)
}

// GetStats returns queue statistics
func (qm *QueueManager) GetStats() (*domain.DownloadStats, error) {
	return qm.repo.GetStats()
}

// processQueue processes the download queue
func (qm *QueueManager) processQueue(ctx context.Context) {
	defer qm.workerWg.Done()

	ticker := time.NewTicker(qm.config.CheckInterval)
	defer ticker.Stop()

	emptyStartTime := time.Time{}
	drained := false // set once work was dispatched since the queue was last empty

	for {
		select {
		case <-ctx.Done():
			qm.logQueueEvent("queue_processor_stopped", zap.String("reason", "context_cancelled"))
			return
		case <-qm.stopChan:
			qm.logQueueEvent("queue_processor_stopped", zap.String("reason", "stop_signal"))
			return
		case <-ticker.C:
			pending, err := qm.repo.FindPending()
			if err != nil {
				qm.logAppError("Failed to fetch pending downloads", zap.Error(err))
				continue
			}

			if len(pending) == 0 && qm.inflightCount() == 0 {
				if emptyStartTime.IsZero() {
					emptyStartTime = time.Now()
					qm.logQueueEvent("queue_empty")
					if drained && qm.notifier != nil {
						qm.notifier.NotifyQueueEmpty()
					}
					drained = false
				} else if qm.config.AutoExitOnEmpty && time.Since(emptyStartTime) > qm.config.EmptyWaitTime {
					qm.logQueueEvent("queue_auto_exit", zap.String("reason", "empty_timeout"))
					close(qm.exited)
					return
				}
				continue
			}

			emptyStartTime = time.Time{}
			drained = true

			for _, download := range pending {
				if !qm.claim(download.ID) {
					continue
				}

				qm.logQueueEvent("download_dispatched",
					zap.String("id", download.ID),
					zap.String("url", download.URL))

				// the per-directory semaphore in DownloadManager controls actual concurrency
				qm.workerWg.Add(1)
				go func(download *domain.Download) {
					defer qm.workerWg.Done()
					defer qm.release(download.ID)

					if err := qm.downloadMgr.ProcessDownload(ctx, download); err != nil {
						qm.logQueueEvent("download_failed",
							zap.String("id", download.ID),
							zap.String("kind", string(domain.KindOf(err))),
							zap.Error(err))
						qm.logAppError("Failed to process download",
							zap.String("id", download.ID),
							zap.Error(err))
						return
					}

					current, _ := qm.repo.FindByID(download.ID)
					if current == nil {
						return
					}
					qm.logQueueEvent("download_finished",
						zap.String("id", current.ID),
						zap.String("status", string(current.Status)),
						zap.String("file_path", current.FilePath))
				}(download)
			}
		}
	}
}

// claim marks a download as dispatched. It returns false when a worker already owns it.
func (qm *QueueManager) claim(id string) bool {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	if _, ok := qm.inflight[id]; ok {
		return false
	}
	qm.inflight[id] = struct{}{}
	return true
}

func (qm *QueueManager) release(id string) {
	qm.mu.Lock()
	delete(qm.inflight, id)
	qm.mu.Unlock()
}

func (qm *QueueManager) inflightCount() int {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return len(qm.inflight)
}

func (qm *QueueManager) logQueueEvent(event string, fields ...zap.Field) {
	if qm.multiLogger != nil {
		qm.multiLogger.LogQueueEvent(event, fields...)
	}
}

func (qm *QueueManager) logAppError(msg string, fields ...zap.Field) {
	if qm.multiLogger != nil {
		qm.multiLogger.LogAppError(msg, fields...)
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
