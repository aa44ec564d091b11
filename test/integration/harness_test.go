//go:build integration && !windows

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/ytmux/api"
	"github.com/yourusername/ytmux/internal/app"
	"github.com/yourusername/ytmux/internal/domain"
	"github.com/yourusername/ytmux/internal/infrastructure"
	"github.com/yourusername/ytmux/pkg/logger"
)

// fakeYTDLP answers --get-title and writes a small artifact for a fetch.
// URLs containing "fail" exit with an error; URLs containing "slow" hang.
const fakeYTDLP = `#!/bin/sh
out=""
format=""
url=""
while [ $# -gt 0 ]; do
	case "$1" in
		--get-title) echo "Integration Clip"; exit 0 ;;
		--output) out="$2"; shift ;;
		--format) format="$2"; shift ;;
		*) url="$1" ;;
	esac
	shift
done
case "$format" in
	bestaudio*) ext=m4a ;;
	*) ext=mp4 ;;
esac
path=$(printf '%s' "$out" | sed "s/%(ext)s/$ext/")
case "$url" in
	*fail*) echo "ERROR: unavailable video" >&2; exit 1 ;;
esac
echo "[download]  25.0% of 1.00MiB at 1.00MiB/s ETA 00:01"
head -c 512 /dev/zero > "$path.part"
case "$url" in
	*slow*) exec sleep 30 ;;
esac
echo "[download]  100.0% of 1.00MiB at 1.00MiB/s ETA 00:00"
mv "$path.part" "$path"
`

// fakeFFmpeg writes its last argument as the output container
const fakeFFmpeg = `#!/bin/sh
for last; do :; done
head -c 4096 /dev/zero > "$last"
`

type harness struct {
	server *httptest.Server
	repo   *infrastructure.SQLiteDownloadRepository
	queue  *app.QueueManager
	dest   string
}

func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

// newHarness wires the server stack the way the ytmux-server binary does,
// with shell stand-ins for yt-dlp and ffmpeg
func newHarness(t *testing.T) *harness {
	t.Helper()

	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	require.NoError(t, os.MkdirAll(bin, 0755))

	config := domain.DefaultConfig()
	config.Tools.YTDLPBinary = writeTool(t, bin, "yt-dlp", fakeYTDLP)
	config.Tools.FFmpegBinary = writeTool(t, bin, "ffmpeg", fakeFFmpeg)
	config.Download.DestinationDir = filepath.Join(root, "media")
	config.Download.LogsDir = filepath.Join(root, "logs")
	config.Download.MinOutputSize = 1024
	config.Download.SettleStepDelay = time.Millisecond
	config.Download.TerminateGrace = time.Second
	config.Queue.DatabasePath = filepath.Join(root, "queue.db")
	config.Queue.CheckInterval = 20 * time.Millisecond
	require.NoError(t, os.MkdirAll(config.Download.DestinationDir, 0755))
	require.NoError(t, app.CheckTools(&config.Tools))

	multi, err := logger.NewMultiLogger(logger.MultiLoggerConfig{Level: "debug", LogsDir: config.Download.LogsDir})
	require.NoError(t, err)
	t.Cleanup(func() { multi.Close() })

	repo, err := infrastructure.NewSQLiteDownloadRepository(config.Queue.DatabasePath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	log := zap.NewNop()
	hub := app.NewProgressHub()
	downloadMgr := app.NewDownloadManager(repo, app.NewOrchestratorFromConfig(config, log), nil, hub, log)
	queueMgr := app.NewQueueManager(repo, downloadMgr, &config.Queue, multi)

	server := httptest.NewServer(api.SetupRouter(api.RouterConfig{
		QueueMgr:           queueMgr,
		DownloadMgr:        downloadMgr,
		Hub:                hub,
		MultiLogger:        multi,
		Logger:             log,
		LogsDir:            config.Download.LogsDir,
		DefaultDestination: config.Download.DestinationDir,
	}))
	t.Cleanup(server.Close)

	require.NoError(t, queueMgr.Start(context.Background()))
	t.Cleanup(func() { queueMgr.Stop() })

	return &harness{server: server, repo: repo, queue: queueMgr, dest: config.Download.DestinationDir}
}

func (h *harness) request(t *testing.T, method, path string, payload, out interface{}) int {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, h.server.URL+path, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < http.StatusBadRequest {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (h *harness) add(t *testing.T, url string) domain.Download {
	t.Helper()
	var d domain.Download
	status := h.request(t, http.MethodPost, "/api/v1/downloads", map[string]string{"url": url}, &d)
	require.Equal(t, http.StatusCreated, status)
	return d
}

// waitFor polls the download until it reaches status
func (h *harness) waitFor(t *testing.T, id string, status domain.DownloadStatus) domain.Download {
	t.Helper()
	var d domain.Download
	require.Eventually(t, func() bool {
		h.request(t, http.MethodGet, "/api/v1/downloads/"+id, nil, &d)
		return d.Status == status
	}, 10*time.Second, 20*time.Millisecond, "download never reached %s", status)
	return d
}
