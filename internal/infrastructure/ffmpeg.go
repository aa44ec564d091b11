package infrastructure

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/yourusername/ytmux/internal/domain"
	"go.uber.org/zap"
)

// FFmpegMuxer combines a video-only and an audio-only file with ffmpeg.
// It implements domain.Muxer.
type FFmpegMuxer struct {
	binary     string
	audioCodec string
	grace      time.Duration
	processLog *ProcessLog
	logger     *zap.Logger
}

// NewFFmpegMuxer creates an ffmpeg adapter. processLog may be nil.
func NewFFmpegMuxer(tools *domain.ToolsConfig, grace time.Duration, processLog *ProcessLog, logger *zap.Logger) *FFmpegMuxer {
	if logger == nil {
		logger = zap.NewNop()
	}
	binary := tools.FFmpegBinary
	if binary == "" {
		binary = "ffmpeg"
	}
	codec := tools.AudioCodec
	if codec == "" {
		codec = "aac"
	}
	return &FFmpegMuxer{
		binary:     binary,
		audioCodec: codec,
		grace:      grace,
		processLog: processLog,
		logger:     logger,
	}
}

// Binary returns the configured ffmpeg executable
func (m *FFmpegMuxer) Binary() string {
	return m.binary
}

// Mux starts ffmpeg copying the video stream and re-encoding the audio stream.
// ffmpeg reports no percentage; the returned progress source only drains stdout.
func (m *FFmpegMuxer) Mux(ctx context.Context, req domain.MuxRequest) (domain.RunningProcess, error) {
	codec := req.AudioCodec
	if codec == "" {
		codec = m.audioCodec
	}

	args := []string{
		"-i", req.VideoPath,
		"-i", req.AudioPath,
		"-c:v", "copy",
		"-c:a", codec,
		"-y", req.OutputPath,
	}

	return StartProcess(ctx, ProcessSpec{
		Name:   "ffmpeg",
		Binary: m.binary,
		Args:   args,
		Dir:    filepath.Dir(req.OutputPath),
		JobID:  req.JobID,
		Stream: domain.StreamMux,
		Grace:  m.grace,
		Log:    m.processLog,
		Logger: m.logger,
	})
}

// CheckTools verifies that every named executable can be found on PATH
func CheckTools(binaries ...string) error {
	for _, bin := range binaries {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("required tool %q not found: %w", bin, err)
		}
	}
	return nil
}
