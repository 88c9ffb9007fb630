package storage

import (
	"strings"
	"testing"
)

func TestFilesRoundTrip(t *testing.T) {
	store, err := NewFiles(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	name, err := store.Save("+31612345678", []byte("payload"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(name, "p31612345678-") || !strings.HasSuffix(name, ".session") {
		t.Fatalf("name = %q", name)
	}

	data, err := store.Read(name)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "payload" {
		t.Fatalf("data = %q", data)
	}

	if err := store.Remove(name); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.Read(name); err == nil {
		t.Fatal("read after remove succeeded")
	}
	// Removing twice is fine.
	if err := store.Remove(name); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}

func TestFilesNamesNeverCollide(t *testing.T) {
	store, err := NewFiles(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	a, err := store.Save("+31612345678", []byte("first"))
	if err != nil {
		t.Fatalf("save a: %v", err)
	}
	b, err := store.Save("+31612345678", []byte("second"))
	if err != nil {
		t.Fatalf("save b: %v", err)
	}
	if a == b {
		t.Fatalf("same phone produced the same name %q", a)
	}
	first, _ := store.Read(a)
	second, _ := store.Read(b)
	if string(first) != "first" || string(second) != "second" {
		t.Fatalf("payload mixup: %q %q", first, second)
	}
}
