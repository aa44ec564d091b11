package infrastructure

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/ytmux/internal/domain"
)

func setupTestRepo(t *testing.T) (*SQLiteDownloadRepository, func()) {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "repo-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "nested", "test.db")
	repo, err := NewSQLiteDownloadRepository(dbPath)
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}
	return repo, cleanup
}

func TestFindByURL_ReturnsMatchingDownload(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	dl := domain.NewDownload("https://www.youtube.com/watch?v=abc123", "/tmp/out")
	dl.MarkCompleted("/tmp/out/Title.mp4")
	require.NoError(t, repo.Create(dl))

	found, err := repo.FindByURL("https://www.youtube.com/watch?v=abc123", []domain.DownloadStatus{domain.StatusCompleted})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, dl.ID, found.ID)
	assert.Equal(t, domain.StatusCompleted, found.Status)
	assert.Equal(t, domain.StageDone, found.Stage)
	assert.Equal(t, "/tmp/out/Title.mp4", found.FilePath)
}

func TestFindByURL_ReturnsNilWhenNoMatch(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	found, err := repo.FindByURL("https://www.youtube.com/watch?v=missing", []domain.DownloadStatus{domain.StatusQueued, domain.StatusCompleted})
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindByURL_FiltersOnStatus(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	dl := domain.NewDownload("https://www.youtube.com/watch?v=failed", "/tmp/out")
	dl.MarkFailed(domain.NewDownloadError(domain.KindFetchAudio, domain.StageFetchingAudio, "", assert.AnError))
	require.NoError(t, repo.Create(dl))

	found, err := repo.FindByURL(dl.URL, []domain.DownloadStatus{
		domain.StatusQueued,
		domain.StatusProcessing,
		domain.StatusCompleted,
	})
	require.NoError(t, err)
	assert.Nil(t, found, "failed download should not match active statuses")

	found, err = repo.FindByURL(dl.URL, []domain.DownloadStatus{domain.StatusFailed})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, dl.ID, found.ID)
	assert.Equal(t, domain.KindFetchAudio, found.ErrorKind)
}

func TestFindByURL_ReturnsMostRecent(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	url := "https://www.youtube.com/watch?v=again"

	old := domain.NewDownload(url, "/tmp/out")
	old.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, repo.Create(old))

	newer := domain.NewDownload(url, "/tmp/out")
	require.NoError(t, repo.Create(newer))

	found, err := repo.FindByURL(url, []domain.DownloadStatus{domain.StatusQueued})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, newer.ID, found.ID)
}

func TestFindByID_NotFound(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	_, err := repo.FindByID("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete("nope"), ErrNotFound)
}

func TestFindPending_OrdersByPriorityThenAge(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	first := domain.NewDownload("https://example.com/watch?v=1", "/tmp/out")
	first.CreatedAt = time.Now().Add(-2 * time.Minute)
	second := domain.NewDownload("https://example.com/watch?v=2", "/tmp/out")
	second.CreatedAt = time.Now().Add(-time.Minute)
	urgent := domain.NewDownload("https://example.com/watch?v=3", "/tmp/out")
	urgent.Priority = 10
	done := domain.NewDownload("https://example.com/watch?v=4", "/tmp/out")
	done.MarkCompleted("/tmp/out/x.mp4")

	for _, d := range []*domain.Download{first, second, urgent, done} {
		require.NoError(t, repo.Create(d))
	}

	pending, err := repo.FindPending()
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, urgent.ID, pending[0].ID)
	assert.Equal(t, first.ID, pending[1].ID)
	assert.Equal(t, second.ID, pending[2].ID)
}

func TestFindAll_RejectsUnknownFilter(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	_, err := repo.FindAll(map[string]interface{}{"1=1; --": "x"})
	assert.Error(t, err)

	dl := domain.NewDownload("https://example.com/watch?v=5", "/tmp/out")
	require.NoError(t, repo.Create(dl))

	all, err := repo.FindAll(map[string]interface{}{"status": domain.StatusQueued})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetStats_CountsByStatus(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()

	queued := domain.NewDownload("https://example.com/watch?v=a", "/tmp/out")
	processing := domain.NewDownload("https://example.com/watch?v=b", "/tmp/out")
	processing.MarkProcessing()
	cancelled := domain.NewDownload("https://example.com/watch?v=c", "/tmp/out")
	cancelled.MarkCancelled()

	for _, d := range []*domain.Download{queued, processing, cancelled} {
		require.NoError(t, repo.Create(d))
	}

	stats, err := repo.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, int64(1), stats.Queued)
	assert.Equal(t, int64(1), stats.Processing)
	assert.Equal(t, int64(1), stats.Cancelled)
	assert.Equal(t, int64(0), stats.Completed)

	active, err := repo.CountActive()
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)
}
