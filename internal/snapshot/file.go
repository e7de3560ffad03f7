package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// File stores the document as a single JSON file.
//
// Saves write a temporary file in the same directory, fsync it, and rename it
// over the target, so a crash mid-write leaves the previous document intact.
type File struct {
	path string
}

// NewFile returns a file snapshotter for path, creating its directory.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("snapshot path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	return &File{path: path}, nil
}

// Path returns the document location.
func (f *File) Path() string {
	return f.path
}

// Load reads the document. A missing file is (nil, nil).
func (f *File) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", f.path, err)
	}
	return data, nil
}

// Save atomically replaces the document.
func (f *File) Save(ctx context.Context, document []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(document); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace snapshot %s: %w", f.path, err)
	}
	committed = true
	return nil
}

// Quarantine writes document next to the snapshot as
// <name>.corrupt-<UTC timestamp>. The snapshot itself is left in place.
func (f *File) Quarantine(ctx context.Context, document []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	aside := f.path + ".corrupt-" + time.Now().UTC().Format("20060102T150405.000000000Z")
	if err := os.WriteFile(aside, document, 0o600); err != nil {
		return "", fmt.Errorf("failed to quarantine snapshot: %w", err)
	}
	return aside, nil
}

// Ping checks that the snapshot directory is still accessible.
func (f *File) Ping(ctx context.Context) error {
	info, err := os.Stat(filepath.Dir(f.path))
	if err != nil {
		return fmt.Errorf("snapshot directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("snapshot directory %s is not a directory", filepath.Dir(f.path))
	}
	return nil
}

// Close is a no-op.
func (f *File) Close() error {
	return nil
}
