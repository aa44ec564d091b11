package infrastructure

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alessio/shellescape"
	"github.com/yourusername/ytmux/pkg/logger"
)

// ProcessLog appends raw yt-dlp/ffmpeg output to a daily log file
// (process-YYYYMMDD.log), framed by a header with the command line and a
// footer with the result.
type ProcessLog struct {
	dir string
}

// NewProcessLog creates a process log writing into dir
func NewProcessLog(dir string) *ProcessLog {
	return &ProcessLog{dir: dir}
}

// Dir returns the logs directory
func (l *ProcessLog) Dir() string {
	return l.dir
}

// Begin opens today's log file and writes the section header
func (l *ProcessLog) Begin(jobID, label, binary string, args []string) (*ProcessLogSection, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	path := logger.LogPath(l.dir, logger.CategoryProcess, time.Now())
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	cmdLine := shellescape.QuoteCommand(append([]string{binary}, args...))
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(file, "\n=== [%s] %s %s ===\n", timestamp, jobID, label)
	fmt.Fprintf(file, "$ %s\n", cmdLine)

	return &ProcessLogSection{file: file}, nil
}

// ProcessLogSection is one framed command run inside a ProcessLog.
// Writes from stdout and stderr copiers may arrive concurrently.
type ProcessLogSection struct {
	mu     sync.Mutex
	file   *os.File
	closed bool
}

func (s *ProcessLogSection) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return len(p), nil
	}
	return s.file.Write(p)
}

// End writes the footer and closes the file. Calling End more than once is a no-op.
func (s *ProcessLogSection) End(err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status, message := "SUCCESS", "exited normally"
	if err != nil {
		status, message = "FAILED", err.Error()
	}
	fmt.Fprintf(s.file, "[%s] %s: %s\n", timestamp, status, message)
	fmt.Fprint(s.file, "=== END ===\n\n")
	return s.file.Close()
}
