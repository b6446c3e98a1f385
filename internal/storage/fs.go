package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/basket/internal/apperr"
)

const draftExt = ".json"

// FS implements Store with one JSON file per draft.
type FS struct {
	root string // absolute path to the drafts directory
}

// NewFS creates an FS store rooted at dir, creating it if needed.
func NewFS(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute drafts directory.
func (f *FS) Root() string { return f.root }

func (f *FS) path(id string) (string, error) {
	if err := validID(id); err != nil {
		return "", err
	}
	return filepath.Join(f.root, id+draftExt), nil
}

// Get reads the draft file for id.
func (f *FS) Get(_ context.Context, id string) ([]byte, error) {
	p, err := f.path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("storage: read %s: %w", id, err)
	}
	return data, nil
}

// Put atomically writes data: tmp file → fsync → rename.
func (f *FS) Put(_ context.Context, id string, data []byte) error {
	p, err := f.path(id)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".basket-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Delete removes the draft file for id.
func (f *FS) Delete(_ context.Context, id string) error {
	p, err := f.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("storage: delete %s: %w", id, err)
	}
	return nil
}

// List returns a record for every draft file in the root directory.
func (f *FS) List(_ context.Context) ([]Record, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []Record
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, draftExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("storage: stat %s: %w", name, err)
		}
		data, err := os.ReadFile(filepath.Join(f.root, name))
		if err != nil {
			return nil, fmt.Errorf("storage: read %s: %w", name, err)
		}
		out = append(out, Record{
			ID:        strings.TrimSuffix(name, draftExt),
			Checksum:  Checksum(data),
			UpdatedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Close is a no-op for the file system store.
func (f *FS) Close() error { return nil }
