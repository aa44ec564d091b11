package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies why a job did not reach StageDone
type ErrorKind string

const (
	KindProbe           ErrorKind = "probe"
	KindFetchAudio      ErrorKind = "fetch_audio"
	KindFetchVideo      ErrorKind = "fetch_video"
	KindMissingArtifact ErrorKind = "missing_artifact"
	KindMux             ErrorKind = "mux"
	KindMuxVerification ErrorKind = "mux_verification"
	KindCancelled       ErrorKind = "cancelled"
)

// Sentinels for errors.Is. Any *DownloadError of the same kind matches.
var (
	ErrProbe           = &DownloadError{Kind: KindProbe}
	ErrFetchAudio      = &DownloadError{Kind: KindFetchAudio}
	ErrFetchVideo      = &DownloadError{Kind: KindFetchVideo}
	ErrMissingArtifact = &DownloadError{Kind: KindMissingArtifact}
	ErrMux             = &DownloadError{Kind: KindMux}
	ErrMuxVerification = &DownloadError{Kind: KindMuxVerification}
	ErrCancelled       = &DownloadError{Kind: KindCancelled}
)

// DownloadError is the failure result of an orchestration run
type DownloadError struct {
	Kind     ErrorKind
	Stage    Stage
	ExitCode int // -1 when the failure did not come from a process exit
	Detail   string
	Err      error
}

// NewDownloadError builds a DownloadError and lifts the exit code out of err when err
// wraps a *ProcessExitError.
func NewDownloadError(kind ErrorKind, stage Stage, detail string, err error) *DownloadError {
	e := &DownloadError{
		Kind:     kind,
		Stage:    stage,
		ExitCode: -1,
		Detail:   detail,
		Err:      err,
	}
	var exitErr *ProcessExitError
	if errors.As(err, &exitErr) {
		e.ExitCode = exitErr.ExitCode
	}
	return e
}

func (e *DownloadError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Stage != "" {
		fmt.Fprintf(&b, " (stage %s)", e.Stage)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.ExitCode >= 0 {
		fmt.Fprintf(&b, " [exit %d]", e.ExitCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Is matches any DownloadError of the same kind
func (e *DownloadError) Is(target error) bool {
	t, ok := target.(*DownloadError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of a DownloadError in err's chain, or "" if there is none
func KindOf(err error) ErrorKind {
	var de *DownloadError
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsCancelled reports whether err is a cancellation result
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// ProcessExitError reports an external process that exited unsuccessfully
type ProcessExitError struct {
	Name     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Name, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ProcessExitError) Unwrap() error {
	return e.Err
}
