// Package storage persists session artifacts on the local filesystem.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Files stores session artifacts under a single base directory. Names are
// generated here and treated as opaque by callers; the uuid suffix keeps a
// re-onboarded phone from ever colliding with a stale artifact.
type Files struct {
	baseDir string
}

// NewFiles opens (and creates if needed) the artifact directory.
func NewFiles(baseDir string) (*Files, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}
	return &Files{baseDir: baseDir}, nil
}

// Save writes a new artifact and returns its generated name.
func (f *Files) Save(phone string, data []byte) (string, error) {
	name := fmt.Sprintf("%s-%s.session", sanitize(phone), uuid.NewString())
	if err := os.WriteFile(filepath.Join(f.baseDir, name), data, 0o600); err != nil {
		return "", fmt.Errorf("storage save: %w", err)
	}
	return name, nil
}

// Read returns the content of a stored artifact.
func (f *Files) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(f.baseDir, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("storage read: %w", err)
	}
	return data, nil
}

// Remove deletes a stored artifact. A missing file is not an error: account
// deletion must succeed even when the artifact is already gone.
func (f *Files) Remove(name string) error {
	err := os.Remove(filepath.Join(f.baseDir, filepath.Base(name)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage remove: %w", err)
	}
	return nil
}

// sanitize keeps artifact names shell- and filesystem-safe.
func sanitize(phone string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9':
			return r
		case r == '+':
			return 'p'
		default:
			return '_'
		}
	}, phone)
}
