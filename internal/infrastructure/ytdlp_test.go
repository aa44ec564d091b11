package infrastructure

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/ytmux/internal/domain"
)

const fakeYTDLP = `
if [ -n "$FAKE_ARGS_FILE" ]; then printf '%s\n' "$@" > "$FAKE_ARGS_FILE"; fi
out=""
while [ $# -gt 0 ]; do
  case "$1" in
    --get-title) echo "  Fake Title: Part 1  "; exit 0 ;;
    --output) out="$2"; shift ;;
  esac
  shift
done
f=$(echo "$out" | sed 's/%(ext)s/webm/')
echo "[download] Destination: $f"
echo "[download]  50.0% of 1.00MiB"
echo "[download] 100.0% of 1.00MiB"
printf 'data' > "$f"
`

func newTestYTDLP(t *testing.T, body string, cookieFile string) *YTDLP {
	t.Helper()
	bin := writeScript(t, t.TempDir(), "yt-dlp", body)
	return NewYTDLP(&domain.ToolsConfig{YTDLPBinary: bin, CookieFile: cookieFile}, 0, nil, nil)
}

func TestYTDLP_ProbeTitle(t *testing.T) {
	y := newTestYTDLP(t, fakeYTDLP, "")

	title, err := y.ProbeTitle(context.Background(), "https://www.youtube.com/watch?v=abc")
	require.NoError(t, err)
	assert.Equal(t, "Fake Title: Part 1", title)
}

func TestYTDLP_ProbeTitleFailure(t *testing.T) {
	y := newTestYTDLP(t, "echo 'ERROR: Unsupported URL' >&2\nexit 1\n", "")

	_, err := y.ProbeTitle(context.Background(), "https://example.com/nothing")
	var exitErr *domain.ProcessExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.ExitCode)
	assert.Contains(t, exitErr.Stderr, "Unsupported URL")
}

func TestYTDLP_ProbeTitleEmpty(t *testing.T) {
	y := newTestYTDLP(t, "echo\nexit 0\n", "")

	_, err := y.ProbeTitle(context.Background(), "https://www.youtube.com/watch?v=abc")
	assert.Error(t, err)
}

func TestYTDLP_FetchWritesArtifactAndReportsProgress(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	t.Setenv("FAKE_ARGS_FILE", argsFile)

	y := newTestYTDLP(t, fakeYTDLP, "")
	dest := t.TempDir()

	proc, err := y.Fetch(context.Background(), domain.FetchRequest{
		JobID:          "job-1",
		URL:            "https://www.youtube.com/watch?v=abc",
		Stream:         domain.StreamAudio,
		Format:         "bestaudio",
		DestinationDir: dest,
		OutputTemplate: "audio.%(ext)s",
	})
	require.NoError(t, err)

	var samples []domain.ProgressSample
	for {
		s, ok := proc.Progress().Next()
		if !ok {
			break
		}
		samples = append(samples, s)
	}
	require.NoError(t, proc.Wait())

	require.Len(t, samples, 2)
	assert.Equal(t, domain.StreamAudio, samples[0].Stream)
	assert.Equal(t, 50.0, samples[0].Percent)
	assert.Equal(t, 100.0, samples[1].Percent)
	assert.FileExists(t, filepath.Join(dest, "audio.webm"))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(args)), "\n")
	assert.Equal(t, []string{
		"--newline",
		"--no-warnings",
		"--format", "bestaudio",
		"--output", filepath.Join(dest, "audio.%(ext)s"),
		"https://www.youtube.com/watch?v=abc",
	}, lines)
}

func TestYTDLP_PassesCookieFileWhenPresent(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "args")
	t.Setenv("FAKE_ARGS_FILE", argsFile)

	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File\n"), 0600))

	y := newTestYTDLP(t, fakeYTDLP, cookies)
	_, err := y.ProbeTitle(context.Background(), "https://www.youtube.com/watch?v=abc")
	require.NoError(t, err)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "--cookies\n"+cookies+"\n")
}

func TestYTDLP_SkipsMissingCookieFile(t *testing.T) {
	y := NewYTDLP(&domain.ToolsConfig{CookieFile: "/nonexistent/cookies.txt"}, 0, nil, nil)
	assert.Nil(t, y.cookieArgs())
	assert.Equal(t, "yt-dlp", y.Binary())
}

func TestNativeProber_RejectsInvalidID(t *testing.T) {
	p := NewNativeProber(nil, nil)
	_, err := p.ProbeTitle(context.Background(), "short")
	assert.Error(t, err)
}
