package app

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/yourusername/ytmux/internal/domain"
	"go.uber.org/zap"
)

// progressPersistStep is the minimum progress change written to the repository
// between stage changes
const progressPersistStep = 5.0

// Notifier receives download lifecycle notifications
type Notifier interface {
	NotifyDownloadStarted(url string)
	NotifyDownloadCompleted(url, filePath string)
	NotifyDownloadFailed(url string, err error)
	NotifyDownloadCancelled(url string)
}

// DownloadManager runs queued downloads through the orchestrator
type DownloadManager struct {
	repo         domain.DownloadRepository
	orchestrator *Orchestrator
	notifier     Notifier
	hub          *ProgressHub
	logger       *zap.Logger
	dirSems      map[string]chan struct{} // one job per destination directory
	jobs         map[string]*Job
	claimed      map[string]context.CancelFunc // held from semaphore acquisition until return
	mu           sync.Mutex
}

// NewDownloadManager creates a new download manager. notifier and hub may be nil.
func NewDownloadManager(
	repo domain.DownloadRepository,
	orchestrator *Orchestrator,
	notifier Notifier,
	hub *ProgressHub,
	logger *zap.Logger,
) *DownloadManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadManager{
		repo:         repo,
		orchestrator: orchestrator,
		notifier:     notifier,
		hub:          hub,
		logger:       logger,
		dirSems:      make(map[string]chan struct{}),
		jobs:         make(map[string]*Job),
		claimed:      make(map[string]context.CancelFunc),
	}
}

func (dm *DownloadManager) dirSemaphore(dir string) chan struct{} {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	key := filepath.Clean(dir)
	sem, ok := dm.dirSems[key]
	if !ok {
		sem = make(chan struct{}, 1)
		dm.dirSems[key] = sem
	}
	return sem
}

// ProcessDownload runs a single download to completion. Downloads sharing a
// destination directory run one at a time.
func (dm *DownloadManager) ProcessDownload(ctx context.Context, download *domain.Download) error {
	sem := dm.dirSemaphore(download.DestinationDir)
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	// a cancel arriving before the job is registered lands on runCtx
	runCtx, cancelRun := context.WithCancel(ctx)
	dm.mu.Lock()
	dm.claimed[download.ID] = cancelRun
	dm.mu.Unlock()
	defer func() {
		dm.mu.Lock()
		delete(dm.claimed, download.ID)
		dm.mu.Unlock()
		cancelRun()
	}()

	// it may have been cancelled or deleted while waiting for the directory
	current, err := dm.repo.FindByID(download.ID)
	if err != nil || current == nil {
		return fmt.Errorf("%w: %s", ErrDownloadNotFound, download.ID)
	}
	if !current.IsPending() {
		dm.logger.Info("Skipping download no longer queued",
			zap.String("id", download.ID),
			zap.String("status", string(current.Status)))
		return nil
	}
	download = current

	if runCtx.Err() != nil {
		dm.finish(download, "", domain.NewDownloadError(domain.KindCancelled, "", "cancelled before start", context.Cause(runCtx)))
		return nil
	}

	dm.logger.Info("Processing download",
		zap.String("id", download.ID),
		zap.String("url", download.URL),
		zap.String("destination", download.DestinationDir))

	download.MarkProcessing()
	if err := dm.repo.Update(download); err != nil {
		return fmt.Errorf("failed to update download status: %w", err)
	}
	dm.publish(download, domain.StreamNone)
	if dm.notifier != nil {
		dm.notifier.NotifyDownloadStarted(download.URL)
	}

	var lastPersisted float64
	onProgress := func(ev domain.ProgressEvent) {
		stageChanged := ev.Stage != download.Stage
		download.UpdateProgress(ev.Stage, ev.Percent)
		if stageChanged || download.Progress-lastPersisted >= progressPersistStep {
			lastPersisted = download.Progress
			if err := dm.repo.Update(download); err != nil {
				dm.logger.Warn("Failed to persist progress", zap.String("id", download.ID), zap.Error(err))
			}
		}
		dm.publish(download, ev.Stream)
	}

	job, err := dm.orchestrator.Start(runCtx, download.Request(), onProgress, WithJobID(download.ID))
	if err != nil {
		dm.finish(download, "", err)
		return err
	}

	dm.mu.Lock()
	dm.jobs[download.ID] = job
	dm.mu.Unlock()

	output, err := job.Wait()

	dm.mu.Lock()
	delete(dm.jobs, download.ID)
	dm.mu.Unlock()

	if residues := job.Residues(); len(residues) > 0 {
		dm.logger.Warn("Temporary files left behind",
			zap.String("id", download.ID),
			zap.Any("residues", residues))
	}

	dm.finish(download, output, err)
	if domain.IsCancelled(err) {
		return nil
	}
	return err
}

// finish records the orchestration result and notifies listeners
func (dm *DownloadManager) finish(download *domain.Download, output string, err error) {
	download.Finish(output, err)
	if updateErr := dm.repo.Update(download); updateErr != nil {
		dm.logger.Error("Failed to update download status", zap.Error(updateErr))
	}
	dm.publish(download, domain.StreamNone)

	switch download.Status {
	case domain.StatusCompleted:
		dm.logger.Info("Download completed",
			zap.String("id", download.ID),
			zap.String("url", download.URL),
			zap.String("file", download.FilePath))
		if dm.notifier != nil {
			dm.notifier.NotifyDownloadCompleted(download.URL, download.FilePath)
		}
	case domain.StatusCancelled:
		dm.logger.Info("Download cancelled", zap.String("id", download.ID))
		if dm.notifier != nil {
			dm.notifier.NotifyDownloadCancelled(download.URL)
		}
	default:
		dm.logger.Error("Download failed",
			zap.String("id", download.ID),
			zap.String("url", download.URL),
			zap.String("kind", string(download.ErrorKind)),
			zap.Error(err))
		if dm.notifier != nil {
			dm.notifier.NotifyDownloadFailed(download.URL, err)
		}
	}
}

func (dm *DownloadManager) publish(download *domain.Download, stream domain.StreamKind) {
	if dm.hub == nil {
		return
	}
	dm.hub.Publish(ProgressUpdate{
		DownloadID: download.ID,
		Status:     download.Status,
		Stage:      download.Stage,
		Stream:     stream,
		Percent:    download.Progress,
		FilePath:   download.FilePath,
		Error:      download.ErrorMessage,
		Time:       time.Now(),
	})
}

// Job returns the live job of a processing download
func (dm *DownloadManager) Job(id string) (*Job, bool) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	job, ok := dm.jobs[id]
	return job, ok
}

// ActiveJobs returns snapshots of every running job, ordered by ID
func (dm *DownloadManager) ActiveJobs() []JobSnapshot {
	dm.mu.Lock()
	jobs := make([]*Job, 0, len(dm.jobs))
	for _, job := range dm.jobs {
		jobs = append(jobs, job)
	}
	dm.mu.Unlock()

	snaps := make([]JobSnapshot, 0, len(jobs))
	for _, job := range jobs {
		snaps = append(snaps, job.Snapshot())
	}
	sort.Slice(snaps, func(a, b int) bool { return snaps[a].ID < snaps[b].ID })
	return snaps
}

// CancelDownload cancels a queued or running download. A running job is
// cancelled cooperatively and its record is updated when the job stops.
func (dm *DownloadManager) CancelDownload(id string) error {
	dm.mu.Lock()
	job, running := dm.jobs[id]
	cancelRun, claimed := dm.claimed[id]
	dm.mu.Unlock()

	switch {
	case running:
		job.Cancel()
	case claimed:
		cancelRun()
	}
	if running || claimed {
		dm.logger.Info("Cancellation requested", zap.String("id", id))
		return nil
	}

	download, err := dm.repo.FindByID(id)
	if err != nil || download == nil {
		return fmt.Errorf("%w: %s", ErrDownloadNotFound, id)
	}

	if download.IsTerminal() {
		return fmt.Errorf("%w: download already in terminal state: %s", ErrInvalidState, download.Status)
	}

	download.MarkCancelled()
	if err := dm.repo.Update(download); err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}
	dm.publish(download, domain.StreamNone)

	dm.logger.Info("Download cancelled", zap.String("id", id))
	return nil
}

// RetryDownload requeues a failed or cancelled download
func (dm *DownloadManager) RetryDownload(ctx context.Context, id string) error {
	download, err := dm.repo.FindByID(id)
	if err != nil || download == nil {
		return fmt.Errorf("%w: %s", ErrDownloadNotFound, id)
	}

	switch download.Status {
	case domain.StatusFailed, domain.StatusCancelled:
	case domain.StatusQueued:
		return fmt.Errorf("%w: download is already queued", ErrInvalidState)
	case domain.StatusProcessing:
		return fmt.Errorf("%w: download is currently processing", ErrInvalidState)
	case domain.StatusCompleted:
		return fmt.Errorf("%w: download already completed", ErrInvalidState)
	default:
		return fmt.Errorf("%w: download cannot be retried from status: %s", ErrInvalidState, download.Status)
	}

	download.Requeue()
	if err := dm.repo.Update(download); err != nil {
		return fmt.Errorf("failed to update download: %w", err)
	}

	dm.logger.Info("Download queued for retry", zap.String("id", id))
	return nil
}

// DeleteDownload removes a download record that is not running
func (dm *DownloadManager) DeleteDownload(id string) error {
	dm.mu.Lock()
	_, claimed := dm.claimed[id]
	dm.mu.Unlock()
	if claimed {
		return fmt.Errorf("%w: download is currently processing", ErrInvalidState)
	}

	download, err := dm.repo.FindByID(id)
	if err != nil || download == nil {
		return fmt.Errorf("%w: %s", ErrDownloadNotFound, id)
	}
	if download.IsProcessing() {
		return fmt.Errorf("%w: download is currently processing", ErrInvalidState)
	}

	if err := dm.repo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete download: %w", err)
	}
	dm.logger.Info("Download deleted", zap.String("id", id))
	return nil
}
