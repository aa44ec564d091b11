package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/yourusername/ytmux/internal/domain"
	"go.uber.org/zap"
)

const (
	// DefaultTerminateGrace is how long a process may take to exit after a
	// termination request before it is killed
	DefaultTerminateGrace = 5 * time.Second

	stderrTailSize = 4 * 1024
)

// ProcessSpec describes an external command to start
type ProcessSpec struct {
	Name   string // short display name used in errors, e.g. yt-dlp
	Binary string
	Args   []string
	Dir    string
	JobID  string

	Stream domain.StreamKind
	Parser ProgressParser // nil: the process reports no progress

	Grace  time.Duration
	Log    *ProcessLog // nil: raw output is discarded
	Logger *zap.Logger
}

// Process is a started external command. It implements domain.RunningProcess.
type Process struct {
	spec    ProcessSpec
	cmd     *exec.Cmd
	source  *LineProgressSource
	stderr  *tailBuffer
	section *ProcessLogSection
	logger  *zap.Logger

	exited   chan struct{}
	waitOnce sync.Once
	waitErr  error

	mu         sync.Mutex
	terminated bool
}

// StartProcess starts the command described by spec. Cancelling ctx has the same
// effect as calling Terminate.
func StartProcess(ctx context.Context, spec ProcessSpec) (*Process, error) {
	if spec.Grace <= 0 {
		spec.Grace = DefaultTerminateGrace
	}
	if spec.Name == "" {
		spec.Name = spec.Binary
	}
	log := spec.Logger
	if log == nil {
		log = zap.NewNop()
	}

	cmd := exec.CommandContext(ctx, spec.Binary, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Cancel = func() error {
		return signalTerminate(cmd.Process)
	}
	cmd.WaitDelay = spec.Grace

	p := &Process{
		spec:   spec,
		cmd:    cmd,
		stderr: newTailBuffer(stderrTailSize),
		logger: log,
		exited: make(chan struct{}),
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe for %s: %w", spec.Name, err)
	}

	if spec.Log != nil {
		section, err := spec.Log.Begin(spec.JobID, p.label(), spec.Binary, spec.Args)
		if err != nil {
			log.Warn("Failed to open process log", zap.String("process", spec.Name), zap.Error(err))
		} else {
			p.section = section
		}
	}

	var out io.Reader = stdout
	if p.section != nil {
		cmd.Stderr = io.MultiWriter(p.stderr, p.section)
		out = io.TeeReader(stdout, p.section)
	} else {
		cmd.Stderr = p.stderr
	}

	if err := cmd.Start(); err != nil {
		if p.section != nil {
			p.section.End(err)
		}
		return nil, fmt.Errorf("failed to start %s: %w", spec.Name, err)
	}

	p.source = NewLineProgressSource(out, spec.Stream, spec.Parser)

	log.Debug("Process started",
		zap.String("process", spec.Name),
		zap.Int("pid", cmd.Process.Pid),
		zap.String("job_id", spec.JobID),
		zap.String("stream", string(spec.Stream)))

	return p, nil
}

func (p *Process) label() string {
	if p.spec.Stream != domain.StreamNone {
		return string(p.spec.Stream)
	}
	return p.spec.Name
}

// Progress returns the progress samples parsed from stdout
func (p *Process) Progress() domain.ProgressSource {
	return p.source
}

// Terminate asks the process to exit and kills it if it is still running once
// the grace period has elapsed. Safe to call repeatedly and from any goroutine.
func (p *Process) Terminate() error {
	p.mu.Lock()
	already := p.terminated
	p.terminated = true
	p.mu.Unlock()

	select {
	case <-p.exited:
		return nil
	default:
	}

	if err := signalTerminate(p.cmd.Process); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		p.logger.Debug("Terminate signal failed, killing",
			zap.String("process", p.spec.Name),
			zap.Error(err))
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill %s: %w", p.spec.Name, err)
		}
		return nil
	}

	if !already {
		go p.killAfterGrace()
	}
	return nil
}

func (p *Process) killAfterGrace() {
	timer := time.NewTimer(p.spec.Grace)
	defer timer.Stop()

	select {
	case <-p.exited:
	case <-timer.C:
		p.logger.Warn("Process ignored termination, killing",
			zap.String("process", p.spec.Name),
			zap.Duration("grace", p.spec.Grace))
		p.cmd.Process.Kill()
	}
}

// Terminated reports whether Terminate has been called
func (p *Process) Terminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

// Wait waits for the process to exit. A non-zero exit is returned as a
// *domain.ProcessExitError carrying the exit code and the tail of stderr.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		close(p.exited)

		if err != nil {
			code := -1
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				code = exitErr.ExitCode()
			}
			err = &domain.ProcessExitError{
				Name:     p.spec.Name,
				ExitCode: code,
				Stderr:   p.stderr.String(),
				Err:      err,
			}
		}
		if p.section != nil {
			p.section.End(err)
		}
		p.waitErr = err

		p.logger.Debug("Process exited",
			zap.String("process", p.spec.Name),
			zap.String("job_id", p.spec.JobID),
			zap.Error(err))
	})
	return p.waitErr
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
