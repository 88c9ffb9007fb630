// Package exporter assembles session artifacts into downloadable archives.
// Archives are deterministic: the same accounts in any order produce a
// byte-identical zip.
package exporter

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/pouyakhodadust-eng/telegram-account-manager/core/logger"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/errs"
	"github.com/pouyakhodadust-eng/telegram-account-manager/internal/model"
)

// Format selects the archive layout.
type Format string

// Supported layouts.
const (
	// FormatTelethon puts every session at the archive root as <phone>.session.
	FormatTelethon Format = "telethon"
	// FormatPyrogram puts every session in its own directory with a JSON
	// metadata sidecar.
	FormatPyrogram Format = "pyrogram"
)

// ParseFormat maps user input onto a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTelethon, FormatPyrogram:
		return Format(s), nil
	}
	return "", fmt.Errorf("%w: %q", errs.ErrUnsupportedFormat, s)
}

// Failure records one account skipped during assembly.
type Failure struct {
	Phone string
	Err   error
}

// ArtifactReader is the slice of the file store the exporter needs.
type ArtifactReader interface {
	Read(name string) ([]byte, error)
}

// Options tune archive assembly.
type Options struct {
	// Manifest adds a stats.txt entry listing the exported sessions.
	Manifest bool
}

// Exporter builds archives from stored sessions.
type Exporter struct {
	store ArtifactReader
	opts  Options
}

// New constructs an exporter.
func New(store ArtifactReader, opts Options) *Exporter {
	return &Exporter{store: store, opts: opts}
}

// Archive entries carry a fixed modification time so re-exports of the same
// accounts hash identically.
var fixedModTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// sidecar is the Pyrogram metadata file.
type sidecar struct {
	PhoneNumber string `json:"phone_number"`
	CountryCode string `json:"country_code,omitempty"`
	CountryName string `json:"country_name,omitempty"`
	AddedDate   string `json:"added_date"`
}

// Export assembles the accounts into a zip in the given format. Accounts
// whose artifact cannot be read are skipped and reported; the export fails
// outright only when nothing could be packed.
func (e *Exporter) Export(ctx context.Context, accounts []model.Account, format Format) ([]byte, []Failure, error) {
	if format != FormatTelethon && format != FormatPyrogram {
		return nil, nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedFormat, format)
	}
	if len(accounts) == 0 {
		return nil, nil, errs.ErrEmptySelection
	}

	sorted := make([]model.Account, len(accounts))
	copy(sorted, accounts)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PhoneNumber < sorted[j].PhoneNumber
	})

	var (
		buf      bytes.Buffer
		failures []Failure
		packed   []model.Account
	)
	zw := zip.NewWriter(&buf)

	for _, a := range sorted {
		if err := ctx.Err(); err != nil {
			_ = zw.Close()
			return nil, failures, err
		}
		data, err := e.store.Read(a.SessionFile)
		if err != nil {
			failures = append(failures, Failure{Phone: a.PhoneNumber, Err: err})
			continue
		}
		if err := writeEntry(zw, a, data, format); err != nil {
			failures = append(failures, Failure{Phone: a.PhoneNumber, Err: err})
			continue
		}
		packed = append(packed, a)
	}

	if len(packed) == 0 {
		_ = zw.Close()
		var agg error
		for _, f := range failures {
			agg = multierror.Append(agg, fmt.Errorf("%s: %w", f.Phone, f.Err))
		}
		return nil, failures, fmt.Errorf("export produced no entries: %w", agg)
	}

	if e.opts.Manifest {
		if err := writeManifest(zw, packed); err != nil {
			_ = zw.Close()
			return nil, failures, fmt.Errorf("write manifest: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, failures, fmt.Errorf("finalize archive: %w", err)
	}

	logger.Info(ctx, "service.export", "export.done",
		slog.String("format", string(format)),
		slog.Int("accounts", len(packed)),
		slog.Int("skipped", len(failures)),
	)
	return buf.Bytes(), failures, nil
}

func writeEntry(zw *zip.Writer, a model.Account, data []byte, format Format) error {
	switch format {
	case FormatTelethon:
		return addFile(zw, a.PhoneNumber+".session", data)
	case FormatPyrogram:
		if err := addFile(zw, a.PhoneNumber+"/"+a.PhoneNumber+".session", data); err != nil {
			return err
		}
		meta := sidecar{
			PhoneNumber: a.PhoneNumber,
			AddedDate:   a.DateKey(),
		}
		if a.CountryCode.Valid {
			meta.CountryCode = a.CountryCode.String
		}
		if a.CountryName.Valid {
			meta.CountryName = a.CountryName.String
		}
		encoded, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return err
		}
		return addFile(zw, a.PhoneNumber+"/"+a.PhoneNumber+".json", encoded)
	}
	return errs.ErrUnsupportedFormat
}

// writeManifest appends stats.txt. Content derives only from the packed
// accounts, never from the clock, to keep archives reproducible.
func writeManifest(zw *zip.Writer, packed []model.Account) error {
	var b bytes.Buffer
	fmt.Fprintf(&b, "sessions: %d\n\n", len(packed))
	for _, a := range packed {
		country := "-"
		if a.CountryCode.Valid {
			country = a.CountryCode.String
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\n", a.PhoneNumber, country, a.DateKey())
	}
	return addFile(zw, "stats.txt", b.Bytes())
}

func addFile(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: fixedModTime,
	})
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
