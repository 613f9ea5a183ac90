// Package storage handles the on-disk layout of a bundle: the metadata and
// responses files plus the binary asset payloads as sibling files, all in
// one directory per deck.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/deckmigrate/internal/apperr"
)

// Bundle file names.
const (
	MetadataFile  = "metadata.json5"
	ResponsesFile = "responses.json5"
)

// Dir is a single bundle directory.
type Dir struct {
	root string
}

// New returns a Dir rooted at path. The directory does not have to exist
// yet; Prepare creates it.
func New(path string) (*Dir, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute bundle directory path.
func (d *Dir) Root() string {
	return d.root
}

// Prepare creates the bundle directory if absent, or empties it if present.
// Export is always a clean overwrite, never incremental.
func (d *Dir) Prepare() error {
	info, err := os.Stat(d.root)
	if errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(d.root, 0o755); err != nil {
			return fmt.Errorf("storage: create %s: %w", d.root, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: stat %s: %w", d.root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("storage: %s is not a directory", d.root)
	}
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return fmt.Errorf("storage: read %s: %w", d.root, err)
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(d.root, entry.Name())); err != nil {
			return fmt.Errorf("storage: empty %s: %w", d.root, err)
		}
	}
	return nil
}

// safeName validates that name is a plain file name (no separators, no
// traversal) and returns its absolute path under the bundle directory.
// Asset file names come from remote records and are not trusted.
func (d *Dir) safeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("storage: file name is required")
	}
	cleaned := filepath.Clean(name)
	if cleaned != filepath.Base(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("storage: invalid file name: %s", name)
	}
	return filepath.Join(d.root, cleaned), nil
}

// WriteFile writes a file into the bundle directory.
func (d *Dir) WriteFile(name string, data []byte) error {
	abs, err := d.safeName(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(abs, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	return nil
}

// ReadFile reads a file from the bundle directory. A missing file is an
// apperr.ErrDependency: the bundle references a sibling that is not there.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	abs, err := d.safeName(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("storage: %s: %w", name, apperr.ErrDependency)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}
