package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DownloadStatus represents the queue status of a download
type DownloadStatus string

const (
	StatusQueued     DownloadStatus = "queued"
	StatusProcessing DownloadStatus = "processing"
	StatusCompleted  DownloadStatus = "completed"
	StatusFailed     DownloadStatus = "failed"
	StatusCancelled  DownloadStatus = "cancelled"
)

// Download represents a queued or finished orchestration run
type Download struct {
	ID             string         `json:"id" gorm:"primaryKey"`
	URL            string         `json:"url" gorm:"not null"`
	DestinationDir string         `json:"destination_dir" gorm:"not null"`
	Status         DownloadStatus `json:"status" gorm:"not null;index"`
	Stage          Stage          `json:"stage,omitempty"`
	Progress       float64        `json:"progress" gorm:"default:0"`
	Priority       int            `json:"priority" gorm:"default:0;index"`
	ErrorKind      ErrorKind      `json:"error_kind,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	FilePath       string         `json:"file_path,omitempty"`
	CreatedAt      time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt      time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

// NewDownload creates a new queued download
func NewDownload(url, destinationDir string) *Download {
	return &Download{
		ID:             uuid.New().String(),
		URL:            url,
		DestinationDir: destinationDir,
		Status:         StatusQueued,
		Priority:       0,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
}

// Request returns the orchestration input for this download
func (d *Download) Request() DownloadRequest {
	return DownloadRequest{URL: d.URL, DestinationDir: d.DestinationDir}
}

// MarkProcessing marks the download as processing
func (d *Download) MarkProcessing() {
	d.Status = StatusProcessing
	d.Stage = StageProbing
	d.Progress = 0
	now := time.Now()
	d.StartedAt = &now
	d.UpdatedAt = now
}

// UpdateProgress records the latest stage and percentage
func (d *Download) UpdateProgress(stage Stage, percent float64) {
	d.Stage = stage
	if percent > d.Progress {
		d.Progress = percent
	}
	d.UpdatedAt = time.Now()
}

// MarkCompleted marks the download as completed
func (d *Download) MarkCompleted(filePath string) {
	d.Status = StatusCompleted
	d.Stage = StageDone
	d.Progress = 100
	d.FilePath = filePath
	d.ErrorKind = ""
	d.ErrorMessage = ""
	now := time.Now()
	d.CompletedAt = &now
	d.UpdatedAt = now
}

// MarkFailed marks the download as failed
func (d *Download) MarkFailed(err error) {
	d.Status = StatusFailed
	d.Stage = StageFailed
	d.ErrorKind = KindOf(err)
	d.ErrorMessage = err.Error()
	d.UpdatedAt = time.Now()
}

// MarkCancelled marks the download as cancelled
func (d *Download) MarkCancelled() {
	d.Status = StatusCancelled
	d.Stage = StageCancelled
	d.ErrorKind = KindCancelled
	now := time.Now()
	d.CompletedAt = &now
	d.UpdatedAt = now
}

// Finish records the result of an orchestration run
func (d *Download) Finish(outputPath string, err error) {
	switch {
	case err == nil:
		d.MarkCompleted(outputPath)
	case errors.Is(err, ErrCancelled):
		d.MarkCancelled()
	default:
		d.MarkFailed(err)
	}
}

// Requeue resets a failed or cancelled download so the queue picks it up again
func (d *Download) Requeue() {
	d.Status = StatusQueued
	d.Stage = ""
	d.Progress = 0
	d.ErrorKind = ""
	d.ErrorMessage = ""
	d.StartedAt = nil
	d.CompletedAt = nil
	d.UpdatedAt = time.Now()
}

// IsTerminal checks if the download is in a terminal state
func (d *Download) IsTerminal() bool {
	return d.Status == StatusCompleted || d.Status == StatusFailed || d.Status == StatusCancelled
}

// IsPending checks if the download is pending
func (d *Download) IsPending() bool {
	return d.Status == StatusQueued
}

// IsProcessing checks if the download is currently processing
func (d *Download) IsProcessing() bool {
	return d.Status == StatusProcessing
}

// ValidateStatus checks if a status filter value is valid
func ValidateStatus(status DownloadStatus) bool {
	switch status {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
