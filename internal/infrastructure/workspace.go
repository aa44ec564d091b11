package infrastructure

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yourusername/ytmux/internal/domain"
	"go.uber.org/zap"
)

// Workspace performs the file operations of a job inside its destination directory
type Workspace struct {
	extensions    map[string]bool
	minOutputSize int64
	logger        *zap.Logger
}

// NewWorkspace creates a workspace using the artifact extensions and minimum
// output size from config
func NewWorkspace(config *domain.DownloadConfig, logger *zap.Logger) *Workspace {
	if logger == nil {
		logger = zap.NewNop()
	}
	exts := config.ArtifactExtensions
	if len(exts) == 0 {
		exts = domain.DefaultArtifactExtensions
	}
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}

	minSize := config.MinOutputSize
	if minSize < 0 {
		minSize = 0
	}

	return &Workspace{
		extensions:    set,
		minOutputSize: minSize,
		logger:        logger,
	}
}

// MinOutputSize returns the size below which an output counts as incomplete
func (w *Workspace) MinOutputSize() int64 {
	return w.minOutputSize
}

// OutputPath returns the final artifact path for a title
func (w *Workspace) OutputPath(dir, title, container string) string {
	return filepath.Join(dir, domain.OutputFileName(title, container))
}

// Exists reports whether path exists
func (w *Workspace) Exists(path string) bool {
	return fileExists(path)
}

// WriteMarker creates the downloading_<id>.txt marker and returns its path
func (w *Workspace) WriteMarker(dir, url string) (string, error) {
	path := filepath.Join(dir, domain.MarkerFileName(url))
	content := fmt.Sprintf("%s\nstarted: %s\n", url, time.Now().Format(time.RFC3339))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write marker: %w", err)
	}
	return path, nil
}

// LocateArtifact returns the first completed file named <prefix><ext> in dir, in
// name order, whose extension is a known artifact extension. It returns "" when
// there is none.
func (w *Workspace) LocateArtifact(dir, prefix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		// "audio.webm" qualifies; "audio.webm.part" and "audio.f251.webm" do not
		rest := strings.TrimPrefix(name, prefix)
		if rest == "" || strings.Contains(rest, ".") {
			continue
		}
		if w.extensions[strings.ToLower(filepath.Ext(name))] {
			return filepath.Join(dir, name), nil
		}
	}
	return "", nil
}

// VerifyOutput checks that path exists, is non-empty and is at least the minimum
// output size. It returns the file size.
func (w *Workspace) VerifyOutput(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("output not found: %w", err)
	}
	size := info.Size()
	if size == 0 {
		return 0, fmt.Errorf("output is empty")
	}
	if size < w.minOutputSize {
		return size, fmt.Errorf("output is %s, below the %s minimum (lower download.min_output_size for short clips)",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(w.minOutputSize)))
	}
	return size, nil
}

// IsIncomplete reports whether path exists but is smaller than the minimum output size
func (w *Workspace) IsIncomplete(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() < w.minOutputSize || info.Size() == 0
}

// Intermediates lists every audio.* and video.* file in dir, including partial
// and fragment files left by an interrupted fetch
func (w *Workspace) Intermediates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, domain.AudioArtifactPrefix) || strings.HasPrefix(name, domain.VideoArtifactPrefix) {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	return paths, nil
}

// Remove deletes path. A missing file is not an error.
func (w *Workspace) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Sweep removes every path and reports the ones that could not be removed
func (w *Workspace) Sweep(paths []string) []domain.CleanupResidue {
	var residues []domain.CleanupResidue
	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true

		if err := w.Remove(path); err != nil {
			w.logger.Warn("Failed to remove temporary file",
				zap.String("path", path),
				zap.Error(err))
			residues = append(residues, domain.CleanupResidue{Path: path, Err: err.Error()})
			continue
		}
		w.logger.Debug("Removed temporary file", zap.String("path", path))
	}
	return residues
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
