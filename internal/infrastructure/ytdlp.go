package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/yourusername/ytmux/internal/domain"
	"go.uber.org/zap"
)

// YTDLP runs yt-dlp for title probing and single-stream fetches.
// It implements domain.MetadataProber and domain.StreamFetcher.
type YTDLP struct {
	binary     string
	cookieFile string
	grace      time.Duration
	parser     ProgressParser
	processLog *ProcessLog
	logger     *zap.Logger
}

// NewYTDLP creates a yt-dlp adapter. processLog may be nil.
func NewYTDLP(tools *domain.ToolsConfig, grace time.Duration, processLog *ProcessLog, logger *zap.Logger) *YTDLP {
	if logger == nil {
		logger = zap.NewNop()
	}
	binary := tools.YTDLPBinary
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YTDLP{
		binary:     binary,
		cookieFile: tools.CookieFile,
		grace:      grace,
		parser:     YTDLPProgressParser,
		processLog: processLog,
		logger:     logger,
	}
}

// WithParser replaces the progress parser used for fetches
func (y *YTDLP) WithParser(parser ProgressParser) *YTDLP {
	y.parser = parser
	return y
}

// Binary returns the configured yt-dlp executable
func (y *YTDLP) Binary() string {
	return y.binary
}

// ProbeTitle asks yt-dlp for the media title
func (y *YTDLP) ProbeTitle(ctx context.Context, url string) (string, error) {
	args := []string{"--get-title", "--no-warnings"}
	args = append(args, y.cookieArgs()...)
	args = append(args, url)

	y.logger.Debug("Probing title", zap.String("cmd", shellescape.QuoteCommand(append([]string{y.binary}, args...))))

	cmd := exec.CommandContext(ctx, y.binary, args...)
	cmd.Cancel = func() error {
		return signalTerminate(cmd.Process)
	}
	cmd.WaitDelay = y.grace

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return "", &domain.ProcessExitError{
			Name:     "yt-dlp",
			ExitCode: code,
			Stderr:   lastLines(stderr.String(), 5),
			Err:      err,
		}
	}

	for _, line := range strings.Split(stdout.String(), "\n") {
		if title := strings.TrimSpace(line); title != "" {
			return title, nil
		}
	}
	return "", fmt.Errorf("yt-dlp returned an empty title")
}

// Fetch starts a single-stream download into req.DestinationDir
func (y *YTDLP) Fetch(ctx context.Context, req domain.FetchRequest) (domain.RunningProcess, error) {
	args := []string{
		"--newline",
		"--no-warnings",
		"--format", req.Format,
		"--output", filepath.Join(req.DestinationDir, req.OutputTemplate),
	}
	args = append(args, y.cookieArgs()...)
	args = append(args, req.URL)

	return StartProcess(ctx, ProcessSpec{
		Name:   "yt-dlp",
		Binary: y.binary,
		Args:   args,
		Dir:    req.DestinationDir,
		JobID:  req.JobID,
		Stream: req.Stream,
		Parser: y.parser,
		Grace:  y.grace,
		Log:    y.processLog,
		Logger: y.logger,
	})
}

func (y *YTDLP) cookieArgs() []string {
	if y.cookieFile != "" && fileExists(y.cookieFile) {
		return []string{"--cookies", y.cookieFile}
	}
	return nil
}

// lastLines returns at most n trailing non-empty lines of s
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
