package infrastructure

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/ytmux/internal/domain"
)

func TestFFmpegMuxer_Mux(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	t.Setenv("FAKE_ARGS_FILE", argsFile)

	bin := writeScript(t, t.TempDir(), "ffmpeg", `
printf '%s\n' "$@" > "$FAKE_ARGS_FILE"
for a; do last="$a"; done
printf 'muxed' > "$last"
`)
	m := NewFFmpegMuxer(&domain.ToolsConfig{FFmpegBinary: bin, AudioCodec: "aac"}, 0, nil, nil)

	dest := t.TempDir()
	out := filepath.Join(dest, "Title.mp4")
	proc, err := m.Mux(context.Background(), domain.MuxRequest{
		JobID:      "job-1",
		VideoPath:  filepath.Join(dest, "video.webm"),
		AudioPath:  filepath.Join(dest, "audio.m4a"),
		OutputPath: out,
	})
	require.NoError(t, err)

	_, ok := proc.Progress().Next()
	assert.False(t, ok, "ffmpeg reports no percentage")
	require.NoError(t, proc.Wait())
	assert.FileExists(t, out)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"-i", filepath.Join(dest, "video.webm"),
		"-i", filepath.Join(dest, "audio.m4a"),
		"-c:v", "copy",
		"-c:a", "aac",
		"-y", out,
	}, strings.Split(strings.TrimSpace(string(args)), "\n"))
}

func TestFFmpegMuxer_Defaults(t *testing.T) {
	m := NewFFmpegMuxer(&domain.ToolsConfig{}, 0, nil, nil)
	assert.Equal(t, "ffmpeg", m.Binary())
	assert.Equal(t, "aac", m.audioCodec)
}

func TestCheckTools(t *testing.T) {
	bin := writeScript(t, t.TempDir(), "tool", "exit 0\n")
	assert.NoError(t, CheckTools(bin))
	assert.Error(t, CheckTools(bin, "ytmux-definitely-missing-tool"))
}
