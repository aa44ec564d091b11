//go:build integration && !windows

package integration

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/ytmux/internal/app"
	"github.com/yourusername/ytmux/internal/domain"
)

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDownloadWorkflow_Success(t *testing.T) {
	h := newHarness(t)

	d := h.add(t, "https://www.youtube.com/watch?v=ok1")
	done := h.waitFor(t, d.ID, domain.StatusCompleted)

	assert.Equal(t, filepath.Join(h.dest, "Integration Clip.mp4"), done.FilePath)
	assert.Equal(t, domain.StageDone, done.Stage)
	assert.Equal(t, 100.0, done.Progress)
	assert.Empty(t, done.ErrorKind)
	assert.Equal(t, []string{"Integration Clip.mp4"}, dirNames(t, h.dest), "artifacts and marker are removed")

	again := h.add(t, "https://www.youtube.com/watch?v=ok1")
	assert.Equal(t, d.ID, again.ID, "a completed download whose file exists is not queued twice")
}

func TestDownloadWorkflow_ProgressStream(t *testing.T) {
	h := newHarness(t)

	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/api/v1/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	d := h.add(t, "https://www.youtube.com/watch?v=ok2")

	var last app.ProgressUpdate
	for {
		conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var u app.ProgressUpdate
		require.NoError(t, conn.ReadJSON(&u))
		if u.DownloadID != d.ID {
			continue
		}
		assert.GreaterOrEqual(t, u.Percent, last.Percent, "progress never moves backwards")
		last = u
		if u.Final() {
			break
		}
	}

	assert.Equal(t, domain.StatusCompleted, last.Status)
	assert.Equal(t, 100.0, last.Percent)
	assert.Equal(t, filepath.Join(h.dest, "Integration Clip.mp4"), last.FilePath)
}

func TestDownloadWorkflow_FailureAndRetry(t *testing.T) {
	h := newHarness(t)

	d := h.add(t, "https://www.youtube.com/watch?v=fail")
	failed := h.waitFor(t, d.ID, domain.StatusFailed)

	assert.Equal(t, domain.KindFetchAudio, failed.ErrorKind)
	assert.Contains(t, failed.ErrorMessage, "unavailable video")
	assert.Empty(t, dirNames(t, h.dest), "a failed fetch leaves nothing behind")

	assert.Equal(t, http.StatusOK, h.request(t, http.MethodPost, "/api/v1/downloads/"+d.ID+"/retry", nil, nil))
	h.waitFor(t, d.ID, domain.StatusFailed)
}

func TestDownloadWorkflow_Cancel(t *testing.T) {
	h := newHarness(t)

	d := h.add(t, "https://www.youtube.com/watch?v=slow")
	h.waitFor(t, d.ID, domain.StatusProcessing)

	require.Eventually(t, func() bool {
		var job app.JobSnapshot
		if h.request(t, http.MethodGet, "/api/v1/jobs/"+d.ID, nil, &job) != http.StatusOK {
			return false
		}
		return len(job.Active) == 1 && job.Active[0] == domain.StreamAudio
	}, 10*time.Second, 20*time.Millisecond, "audio fetch never started")

	assert.Equal(t, http.StatusAccepted, h.request(t, http.MethodPost, "/api/v1/downloads/"+d.ID+"/cancel", nil, nil))
	cancelled := h.waitFor(t, d.ID, domain.StatusCancelled)

	assert.Equal(t, domain.KindCancelled, cancelled.ErrorKind)
	assert.Empty(t, dirNames(t, h.dest), "partial files are removed")
	assert.Equal(t, http.StatusNotFound, h.request(t, http.MethodGet, "/api/v1/jobs/"+d.ID, nil, nil))
}
