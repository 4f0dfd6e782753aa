// Package workdir maintains the per-scene work directories under
// paths.work_dir. Each scene owns a "scene-<id>" directory holding its
// attempt clips, extracted frames, and assembly intermediates.
package workdir

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"scenegen/internal/logging"
)

const scenePrefix = "scene-"

// CleanupResult lists removed directories and per-directory failures.
type CleanupResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// SceneDir returns the work directory for a scene.
func SceneDir(root string, sceneID int64) string {
	return filepath.Join(root, fmt.Sprintf("%s%d", scenePrefix, sceneID))
}

// SceneID parses a scene work directory name. ok is false for anything
// that is not "scene-<positive id>".
func SceneID(name string) (int64, bool) {
	raw, found := strings.CutPrefix(name, scenePrefix)
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// CleanOrphaned removes scene directories whose scene no longer exists and
// any other directory older than maxAge. Directories of known scenes are
// never touched.
func CleanOrphaned(ctx context.Context, root string, known map[int64]struct{}, maxAge time.Duration, logger *slog.Logger) CleanupResult {
	result := CleanupResult{}
	root = strings.TrimSpace(root)
	if root == "" {
		return result
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, CleanupError{Path: root, Error: err})
		}
		return result
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			return result
		}
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(root, entry.Name())

		reason := ""
		if id, ok := SceneID(entry.Name()); ok {
			if _, exists := known[id]; exists {
				continue
			}
			reason = "orphaned"
		} else {
			info, err := entry.Info()
			if err != nil {
				result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
				continue
			}
			if !info.ModTime().Before(cutoff) {
				continue
			}
			reason = "stale"
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dirPath, Error: err})
			logging.WarnWithContext(logger, "failed to remove work directory", "workdir_cleanup_failed",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check paths.work_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		logger.Info("removed work directory",
			logging.String("path", dirPath),
			logging.String("reason", reason),
			logging.String(logging.FieldEventType, "workdir_cleanup"),
		)
	}
	return result
}

// DirInfo describes one directory under the work root.
type DirInfo struct {
	Name    string
	Path    string
	ModTime time.Time
	Size    int64
}

// Usage lists the work root's directories with their recursive sizes.
func Usage(root string) ([]DirInfo, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var dirs []DirInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		dirPath := filepath.Join(root, entry.Name())
		size, _ := dirSize(dirPath)
		dirs = append(dirs, DirInfo{Name: entry.Name(), Path: dirPath, ModTime: info.ModTime(), Size: size})
	}
	return dirs, nil
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err == nil {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
