package domain

import (
	"fmt"
	"os"
	"strings"
)

// Stage is the orchestration state of a single job
type Stage string

const (
	StageProbing       Stage = "probing"
	StageFetchingAudio Stage = "fetching_audio"
	StageFetchingVideo Stage = "fetching_video"
	StageMuxing        Stage = "muxing"
	StageCleanup       Stage = "cleanup"
	StageDone          Stage = "done"
	StageFailed        Stage = "failed"
	StageCancelled     Stage = "cancelled"
)

// IsTerminal reports whether no further transitions can happen from s
func (s Stage) IsTerminal() bool {
	return s == StageDone || s == StageFailed || s == StageCancelled
}

// StreamKind identifies which external process a progress event belongs to.
// The zero value means the event is not tied to a process.
type StreamKind string

const (
	StreamNone  StreamKind = ""
	StreamAudio StreamKind = "audio"
	StreamVideo StreamKind = "video"
	StreamMux   StreamKind = "mux"
)

// Terminator is the only operation a caller may perform on a running external process.
type Terminator interface {
	Terminate() error
}

// TerminatorFunc adapts a function to Terminator
type TerminatorFunc func() error

// Terminate calls f
func (f TerminatorFunc) Terminate() error {
	return f()
}

// ProgressEvent is delivered to the caller while a job runs
type ProgressEvent struct {
	Percent float64    `json:"percent"`
	Stage   Stage      `json:"stage"`
	Stream  StreamKind `json:"stream,omitempty"`
	Process Terminator `json:"-"`
}

// ProgressFunc receives progress events. Calls for one job never overlap.
type ProgressFunc func(ProgressEvent)

// DownloadRequest is the immutable input of one orchestration run
type DownloadRequest struct {
	URL            string
	DestinationDir string
}

// Validate checks that the URL is present and the destination is a writable directory
func (r DownloadRequest) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("url is required")
	}
	if strings.TrimSpace(r.DestinationDir) == "" {
		return fmt.Errorf("destination directory is required")
	}

	info, err := os.Stat(r.DestinationDir)
	if err != nil {
		return fmt.Errorf("destination directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("destination is not a directory: %s", r.DestinationDir)
	}

	probe, err := os.CreateTemp(r.DestinationDir, ".ytmux-write-check-*")
	if err != nil {
		return fmt.Errorf("destination directory is not writable: %w", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	return nil
}

// CleanupResidue is a temporary file that cleanup could not remove
type CleanupResidue struct {
	Path string `json:"path"`
	Err  string `json:"error"`
}
