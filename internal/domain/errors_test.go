package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDownloadError_LiftsExitCode(t *testing.T) {
	exitErr := &ProcessExitError{Name: "yt-dlp", ExitCode: 2, Stderr: "ERROR: unavailable"}

	err := NewDownloadError(KindFetchAudio, StageFetchingAudio, "audio download failed", fmt.Errorf("wait: %w", exitErr))

	assert.Equal(t, 2, err.ExitCode)
	assert.Contains(t, err.Error(), "fetch_audio")
	assert.Contains(t, err.Error(), "[exit 2]")
	assert.Contains(t, err.Error(), "ERROR: unavailable")

	var unwrapped *ProcessExitError
	require.True(t, errors.As(err, &unwrapped))
	assert.Equal(t, "yt-dlp", unwrapped.Name)
}

func TestNewDownloadError_NoProcess(t *testing.T) {
	err := NewDownloadError(KindMissingArtifact, StageMuxing, "video artifact not found", nil)

	assert.Equal(t, -1, err.ExitCode)
	assert.Equal(t, "missing_artifact (stage muxing): video artifact not found", err.Error())
}

func TestDownloadError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("run: %w", NewDownloadError(KindMux, StageMuxing, "", errors.New("x")))

	assert.True(t, errors.Is(err, ErrMux))
	assert.False(t, errors.Is(err, ErrMuxVerification))
	assert.False(t, IsCancelled(err))
	assert.Equal(t, KindMux, KindOf(err))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(NewDownloadError(KindCancelled, StageFetchingVideo, "", nil)))
	assert.False(t, IsCancelled(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
}
