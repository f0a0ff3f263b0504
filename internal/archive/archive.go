package archive

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zip"

	"lumen/internal/record"
	"lumen/pkg/imgutil"
)

// ErrNoManifest means the zip has no metadata.json entry.
var ErrNoManifest = errors.New("missing " + ManifestName)

// FormatError aborts a restore: the input is not a valid archive.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("not a valid archive: %v", e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Options are the archive-level fields of the manifest.
type Options struct {
	Tag       string
	Settings  json.RawMessage
	Timestamp time.Time
}

// Result is what Decode recovers. Skipped lists the ids of manifest items
// whose payloads were missing from the content area.
type Result struct {
	Records   []*record.Record
	Settings  json.RawMessage
	Tag       string
	Timestamp time.Time
	Skipped   []string
}

// Encode builds an archive for records, in order.
func Encode(records []*record.Record, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, records, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the archive to w.
func Write(w io.Writer, records []*record.Record, opts Options) error {
	ts := opts.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	manifest := Manifest{
		Version:   Version,
		Timestamp: ts.UnixMilli(),
		Tag:       opts.Tag,
		Settings:  opts.Settings,
		Items:     make([]Item, 0, len(records)),
	}

	zw := zip.NewWriter(w)
	for _, r := range records {
		it := NewItem(r)
		manifest.Items = append(manifest.Items, it)

		if err := writeEntry(zw, ContentDir+it.OriginalFileNameRef, r.OriginalBytes, zip.Store, ts); err != nil {
			return err
		}
		if err := writeEntry(zw, ContentDir+it.CompressedFileNameRef, r.ProcessedBytes, zip.Store, ts); err != nil {
			return err
		}
		if it.AIOriginalFileNameRef != "" {
			if err := writeEntry(zw, ContentDir+it.AIOriginalFileNameRef, r.AIOriginalBytes, zip.Store, ts); err != nil {
				return err
			}
		}
	}

	meta, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeEntry(zw, ManifestName, meta, zip.Deflate, ts); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

func writeEntry(zw *zip.Writer, name string, data []byte, method uint16, mod time.Time) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method, Modified: mod})
	if err != nil {
		return fmt.Errorf("create entry %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("write entry %s: %w", name, err)
	}
	return nil
}

// Decode reads an archive. A missing or unparsable manifest is a
// FormatError; an item with a missing payload is skipped and reported in
// Result.Skipped.
func Decode(data []byte) (*Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &FormatError{Err: err}
	}

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[f.Name] = f
	}

	mf, ok := entries[ManifestName]
	if !ok {
		return nil, &FormatError{Err: ErrNoManifest}
	}
	raw, err := readEntry(mf)
	if err != nil {
		return nil, &FormatError{Err: err}
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, &FormatError{Err: fmt.Errorf("parse %s: %w", ManifestName, err)}
	}

	res := &Result{
		Records:   make([]*record.Record, 0, len(manifest.Items)),
		Settings:  manifest.Settings,
		Tag:       manifest.Tag,
		Timestamp: time.UnixMilli(manifest.Timestamp),
	}
	for _, it := range manifest.Items {
		original, okOrig := lookup(entries, it.OriginalFileNameRef)
		processed, okProc := lookup(entries, it.CompressedFileNameRef)
		if !okOrig || !okProc {
			res.Skipped = append(res.Skipped, it.ID)
			continue
		}
		var aiOriginal []byte
		if it.AIOriginalFileNameRef != "" {
			aiOriginal, _ = lookup(entries, it.AIOriginalFileNameRef)
		}
		res.Records = append(res.Records, it.Record(original, processed, aiOriginal))
	}
	return res, nil
}

func lookup(entries map[string]*zip.File, ref string) ([]byte, bool) {
	if ref == "" {
		return nil, false
	}
	f, ok := entries[ContentDir+ref]
	if !ok {
		return nil, false
	}
	data, err := readEntry(f)
	if err != nil {
		return nil, false
	}
	return data, true
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

func sniffMime(data []byte) string {
	return imgutil.Sniff(data).MimeType()
}
