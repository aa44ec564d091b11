package app

import (
	"net/http"
	"time"

	"github.com/yourusername/ytmux/internal/domain"
	"github.com/yourusername/ytmux/internal/infrastructure"
	"go.uber.org/zap"
)

// nativeProbeTimeout bounds a single metadata request of the native prober
const nativeProbeTimeout = 30 * time.Second

// NewProber returns the title prober selected by tools.ProbeBackend
func NewProber(tools *domain.ToolsConfig, ytdlp *infrastructure.YTDLP, logger *zap.Logger) domain.MetadataProber {
	if tools.ProbeBackend == domain.ProbeBackendNative {
		return infrastructure.NewNativeProber(&http.Client{Timeout: nativeProbeTimeout}, logger)
	}
	return ytdlp
}

// NewOrchestratorFromConfig wires yt-dlp, ffmpeg and the workspace from config.
// Raw tool output goes to a process log under config.Download.LogsDir.
func NewOrchestratorFromConfig(config *domain.Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}

	processLog := infrastructure.NewProcessLog(config.Download.LogsDir)
	grace := config.Download.TerminateGrace

	ytdlp := infrastructure.NewYTDLP(&config.Tools, grace, processLog, logger)
	muxer := infrastructure.NewFFmpegMuxer(&config.Tools, grace, processLog, logger)
	workspace := infrastructure.NewWorkspace(&config.Download, logger)

	return NewOrchestrator(
		NewProber(&config.Tools, ytdlp, logger),
		ytdlp,
		muxer,
		workspace,
		&config.Download,
		&config.Tools,
		logger,
	)
}

// CheckTools verifies that the configured yt-dlp and ffmpeg binaries can be found
func CheckTools(tools *domain.ToolsConfig) error {
	return infrastructure.CheckTools(tools.YTDLPBinary, tools.FFmpegBinary)
}
