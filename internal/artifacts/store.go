package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileStore persists artifact payloads onto the local filesystem, streaming
// writes through a temporary ".partial" file so a finished name on disk
// always means a fully transferred payload.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("artifacts: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: ensure base path: %w", err)
	}
	return &FileStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// WriteStream copies r to the file at key and returns the absolute path. The
// bytes land in key+".partial" first and are renamed into place only after
// the stream is fully consumed and flushed, so the payload is never held in
// memory and a crash or mid-transfer failure never leaves a truncated file
// under the final name. Any stale partial from a previous attempt is
// overwritten. On failure the partial is removed.
func (s *FileStore) WriteStream(ctx context.Context, key string, r io.Reader) (string, error) {
	if s == nil {
		return "", errors.New("artifacts: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("artifacts: ensure directory: %w", err)
	}

	partial := fullPath + ".partial"
	f, err := os.Create(partial)
	if err != nil {
		return "", fmt.Errorf("artifacts: create partial: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(partial)
		return "", fmt.Errorf("artifacts: stream payload: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(partial)
		return "", fmt.Errorf("artifacts: flush payload: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("artifacts: close payload: %w", err)
	}
	if err := os.Rename(partial, fullPath); err != nil {
		os.Remove(partial)
		return "", fmt.Errorf("artifacts: finalize payload: %w", err)
	}
	return fullPath, nil
}

// RemovePath deletes a file previously returned by WriteStream. Paths
// outside the store root are refused; a missing file is not an error.
func (s *FileStore) RemovePath(path string) error {
	if s == nil || path == "" {
		return nil
	}
	rel, err := filepath.Rel(s.basePath, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.New("artifacts: path outside store root")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("artifacts: remove payload: %w", err)
	}
	return nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("artifacts: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("artifacts: invalid key")
	}
	return cleaned, nil
}
