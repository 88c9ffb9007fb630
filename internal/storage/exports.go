package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// Exports keeps a copy of produced export archives on disk. Unlike session
// artifacts the names are caller-chosen; a re-export under the same name
// overwrites the previous copy.
type Exports struct {
	baseDir string
}

// NewExports opens (and creates if needed) the exports directory.
func NewExports(baseDir string) (*Exports, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("exports dir: %w", err)
	}
	return &Exports{baseDir: baseDir}, nil
}

// Save writes an archive and returns its path.
func (e *Exports) Save(name string, data []byte) (string, error) {
	path := filepath.Join(e.baseDir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("exports save: %w", err)
	}
	return path, nil
}
