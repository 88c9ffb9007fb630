package exporter

import (
	"archive/zip"
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
)

type mapStore map[string][]byte

func (m mapStore) Read(name string) ([]byte, error) {
	data, ok := m[name]
	if !ok {
		return nil, errors.New("artifact missing")
	}
	return data, nil
}

func account(phone, country, file string) model.Account {
	a := model.Account{
		PhoneNumber: phone,
		AddedDate:   time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		SessionFile: file,
	}
	if country != "" {
		a.CountryCode = sql.NullString{String: country, Valid: true}
	}
	return a
}

func entryNames(t *testing.T, archive []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}

func readEntry(t *testing.T, archive []byte, name string) []byte {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read entry %s: %v", name, err)
		}
		return data
	}
	t.Fatalf("entry %s not found in %v", name, entryNames(t, archive))
	return nil
}

func TestExportTelethonLayout(t *testing.T) {
	store := mapStore{"a.session": []byte("A"), "b.session": []byte("B")}
	e := New(store, Options{})

	archive, failures, err := e.Export(context.Background(), []model.Account{
		account("+49151111", "DE", "b.session"),
		account("+3161111", "NL", "a.session"),
	}, FormatTelethon)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("failures = %v", failures)
	}

	names := entryNames(t, archive)
	want := []string{"+3161111.session", "+49151111.session"}
	if len(names) != len(want) {
		t.Fatalf("entries = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("entry %d = %q, want %q (sorted by phone)", i, names[i], want[i])
		}
	}
	if got := readEntry(t, archive, "+3161111.session"); string(got) != "A" {
		t.Fatalf("payload = %q", got)
	}
}

func TestExportPyrogramSidecar(t *testing.T) {
	store := mapStore{"a.session": []byte("A")}
	e := New(store, Options{})

	archive, _, err := e.Export(context.Background(), []model.Account{
		account("+3161111", "NL", "a.session"),
	}, FormatPyrogram)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	names := entryNames(t, archive)
	want := []string{"+3161111/+3161111.session", "+3161111/+3161111.json"}
	if len(names) != 2 || names[0] != want[0] || names[1] != want[1] {
		t.Fatalf("entries = %v, want %v", names, want)
	}

	var meta sidecar
	if err := json.Unmarshal(readEntry(t, archive, want[1]), &meta); err != nil {
		t.Fatalf("decode sidecar: %v", err)
	}
	if meta.PhoneNumber != "+3161111" || meta.CountryCode != "NL" || meta.AddedDate != "2026-08-30" {
		t.Fatalf("sidecar = %+v", meta)
	}
}

func TestExportDeterministic(t *testing.T) {
	store := mapStore{"a.session": []byte("A"), "b.session": []byte("B"), "c.session": []byte("C")}
	e := New(store, Options{Manifest: true})
	accounts := []model.Account{
		account("+3161111", "NL", "a.session"),
		account("+49151111", "DE", "b.session"),
		account("+1416555", "CA", "c.session"),
	}

	first, _, err := e.Export(context.Background(), accounts, FormatTelethon)
	if err != nil {
		t.Fatalf("first export: %v", err)
	}
	// Reversed input order must not change a single byte.
	reversed := []model.Account{accounts[2], accounts[1], accounts[0]}
	second, _, err := e.Export(context.Background(), reversed, FormatTelethon)
	if err != nil {
		t.Fatalf("second export: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("archives differ across input orderings")
	}
}

func TestExportManifest(t *testing.T) {
	store := mapStore{"a.session": []byte("A"), "b.session": []byte("B")}
	e := New(store, Options{Manifest: true})

	archive, _, err := e.Export(context.Background(), []model.Account{
		account("+3161111", "NL", "a.session"),
		account("+49151111", "", "b.session"),
	}, FormatTelethon)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	manifest := string(readEntry(t, archive, "stats.txt"))
	want := "sessions: 2\n\n+3161111\tNL\t2026-08-30\n+49151111\t-\t2026-08-30\n"
	if manifest != want {
		t.Fatalf("manifest = %q, want %q", manifest, want)
	}
}

func TestExportSkipsUnreadableArtifacts(t *testing.T) {
	store := mapStore{"a.session": []byte("A")}
	e := New(store, Options{})

	archive, failures, err := e.Export(context.Background(), []model.Account{
		account("+3161111", "NL", "a.session"),
		account("+49151111", "DE", "gone.session"),
	}, FormatTelethon)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(failures) != 1 || failures[0].Phone != "+49151111" {
		t.Fatalf("failures = %v", failures)
	}
	names := entryNames(t, archive)
	if len(names) != 1 || names[0] != "+3161111.session" {
		t.Fatalf("entries = %v", names)
	}
}

func TestExportAllUnreadableFails(t *testing.T) {
	e := New(mapStore{}, Options{})

	_, failures, err := e.Export(context.Background(), []model.Account{
		account("+3161111", "NL", "gone.session"),
	}, FormatTelethon)
	if err == nil {
		t.Fatal("expected error when nothing could be packed")
	}
	if len(failures) != 1 {
		t.Fatalf("failures = %v", failures)
	}
}

func TestExportEmptySelection(t *testing.T) {
	e := New(mapStore{}, Options{})
	if _, _, err := e.Export(context.Background(), nil, FormatTelethon); !errors.Is(err, errs.ErrEmptySelection) {
		t.Fatalf("empty selection: got %v", err)
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	e := New(mapStore{}, Options{})
	if _, _, err := e.Export(context.Background(), []model.Account{account("+1", "", "x")}, Format("tdata")); !errors.Is(err, errs.ErrUnsupportedFormat) {
		t.Fatalf("unsupported format: got %v", err)
	}
	if _, err := ParseFormat("tdata"); !errors.Is(err, errs.ErrUnsupportedFormat) {
		t.Fatalf("parse format: got %v", err)
	}
	if f, err := ParseFormat("pyrogram"); err != nil || f != FormatPyrogram {
		t.Fatalf("parse pyrogram: %v %v", f, err)
	}
}

func TestExportCancelled(t *testing.T) {
	store := mapStore{"a.session": []byte("A")}
	e := New(store, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := e.Export(ctx, []model.Account{account("+3161111", "NL", "a.session")}, FormatTelethon); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled export: got %v", err)
	}
}
