package convert

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Workspace is the folder holding downloaded sources and conversion output
type Workspace struct {
	dir string
}

// NewWorkspace creates dir if it does not exist
func NewWorkspace(dir string) (*Workspace, error) {
	if dir == "" {
		dir = "temp"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp folder %q: %w", dir, err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace folder
func (w *Workspace) Dir() string {
	return w.dir
}

// NewFile returns a fresh file path with the given extension. The file is
// not created.
func (w *Workspace) NewFile(format string) string {
	name := uuid.NewString()
	if format != "" {
		name += "." + format
	}
	return filepath.Join(w.dir, name)
}

// NewDir creates a fresh nested folder
func (w *Workspace) NewDir() (string, error) {
	path := filepath.Join(w.dir, uuid.NewString())
	if err := os.Mkdir(path, 0o755); err != nil {
		return "", fmt.Errorf("create nested temp folder: %w", err)
	}
	return path, nil
}

// Remove deletes a file. A missing file is not an error.
func (w *Workspace) Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// RemoveAll deletes a file or folder recursively
func (w *Workspace) RemoveAll(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Expired lists top-level entries last modified before the given time
func (w *Workspace) Expired(before time.Time) ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("list temp folder: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			// Removed concurrently
			continue
		}
		if info.ModTime().Before(before) {
			paths = append(paths, filepath.Join(w.dir, entry.Name()))
		}
	}
	return paths, nil
}
