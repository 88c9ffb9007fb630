package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExportsSaveAndOverwrite(t *testing.T) {
	dir := t.TempDir()
	store, err := NewExports(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	path, err := store.Save("u7_accounts_telethon.zip", []byte("first"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("path %q not under %q", path, dir)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "first" {
		t.Fatalf("data = %q", data)
	}

	// A re-export replaces the previous copy.
	again, err := store.Save("u7_accounts_telethon.zip", []byte("second"))
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if again != path {
		t.Fatalf("paths differ: %q vs %q", again, path)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "second" {
		t.Fatalf("data after overwrite = %q", data)
	}
}

func TestExportsNameIsFlattened(t *testing.T) {
	dir := t.TempDir()
	store, err := NewExports(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	path, err := store.Save("../escape.zip", []byte("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("traversal escaped the exports dir: %q", path)
	}
}
