package records

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Backend loads and saves the whole records document.
//
// Load returns an empty mapping when nothing was persisted yet and an error
// wrapping ErrCorrupt when the document cannot be decoded.
type Backend interface {
	Load(ctx context.Context) (Records, error)
	Save(ctx context.Context, rs Records) error
	Name() string
}

// FileBackend keeps the document in a single JSON file.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend persisting to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Name identifies the backend in logs.
func (b *FileBackend) Name() string { return "file" }

// Path returns the document location.
func (b *FileBackend) Path() string { return b.path }

// Load reads and decodes the file. A missing file is an empty store.
func (b *FileBackend) Load(ctx context.Context) (Records, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Records{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorrupt, b.path, err)
	}
	return decode(body)
}

// Save replaces the file atomically: the document is written to a temporary
// file in the same directory, synced, renamed over the target, and the parent
// directory is synced so the rename survives a crash.
func (b *FileBackend) Save(ctx context.Context, rs Records) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := encode(rs)
	if err != nil {
		return fmt.Errorf("records: encode: %w", err)
	}

	dir := filepath.Dir(b.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("records: create temp in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("records: write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("records: sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("records: close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("records: chmod %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("records: rename %s: %w", b.path, err)
	}

	if parent, err := os.Open(dir); err == nil {
		parent.Sync()
		parent.Close()
	}
	return nil
}
