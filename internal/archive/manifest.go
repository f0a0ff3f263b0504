// Package archive serializes processed-image records into a single zip
// backup and reads them back.
//
// Layout: a metadata.json manifest at the root plus one original and one
// processed payload per item under images/, named as the manifest refers
// to them.
package archive

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"lumen/internal/codec"
	"lumen/internal/record"
)

const (
	ManifestName = "metadata.json"
	ContentDir   = "images/"
	Version      = "1.0"
)

// Manifest is the metadata.json document.
type Manifest struct {
	Version   string          `json:"version"`
	Timestamp int64           `json:"timestamp"`
	Tag       string          `json:"tag"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	Items     []Item          `json:"items"`
}

// Item describes one record. Fields after CompressedFileNameRef are optional
// extensions; archives without them still decode.
type Item struct {
	ID                    string               `json:"id"`
	OriginalName          string               `json:"originalName"`
	OriginalSize          int64                `json:"originalSize"`
	CompressedSize        int64                `json:"compressedSize"`
	CompressionRatio      int                  `json:"compressionRatio"`
	QualityUsed           float64              `json:"qualityUsed"`
	Timestamp             int64                `json:"timestamp"`
	AIData                *record.AIAnalysis   `json:"aiData,omitempty"`
	Mode                  record.Mode          `json:"mode,omitempty"`
	EnhanceMethod         record.EnhanceMethod `json:"enhanceMethod,omitempty"`
	OriginalFileNameRef   string               `json:"originalFileNameRef"`
	CompressedFileNameRef string               `json:"compressedFileNameRef"`

	OriginalType          string             `json:"originalType,omitempty"`
	CompressedType        string             `json:"compressedType,omitempty"`
	OutputFormat          codec.OutputFormat `json:"outputFormat,omitempty"`
	AIModel               string             `json:"aiModel,omitempty"`
	AIText                string             `json:"aiText,omitempty"`
	AIOriginalFileNameRef string             `json:"aiOriginalFileNameRef,omitempty"`
}

// NewItem builds the manifest entry for r.
func NewItem(r *record.Record) Item {
	name := safeName(r.OriginalName)
	it := Item{
		ID:                    r.ID,
		OriginalName:          r.OriginalName,
		OriginalSize:          r.OriginalSize(),
		CompressedSize:        r.ProcessedSize(),
		CompressionRatio:      r.ChangeRatio(),
		QualityUsed:           r.QualityUsed,
		Timestamp:             r.CreatedAt.UnixMilli(),
		AIData:                r.Analysis,
		Mode:                  r.Mode,
		EnhanceMethod:         r.EnhanceMethod,
		OriginalFileNameRef:   r.ID + "_orig_" + name,
		CompressedFileNameRef: r.ID + "_comp_" + name,
		OriginalType:          r.OriginalType,
		CompressedType:        r.ProcessedType,
		OutputFormat:          r.OutputFormat,
		AIModel:               r.AIModel,
		AIText:                r.AIText,
	}
	if len(r.AIOriginalBytes) > 0 {
		it.AIOriginalFileNameRef = r.ID + "_ai_" + name
	}
	return it
}

// Record rebuilds a record from the item and its payloads. Sizes and the
// ratio are derived from the payloads, not copied from the manifest.
func (it Item) Record(original, processed, aiOriginal []byte) *record.Record {
	r := &record.Record{
		ID:              it.ID,
		CreatedAt:       time.UnixMilli(it.Timestamp),
		OriginalName:    it.OriginalName,
		OriginalType:    it.OriginalType,
		OriginalBytes:   original,
		ProcessedType:   it.CompressedType,
		ProcessedBytes:  processed,
		QualityUsed:     it.QualityUsed,
		Mode:            it.Mode,
		EnhanceMethod:   it.EnhanceMethod,
		OutputFormat:    it.OutputFormat,
		Analysis:        it.AIData,
		AIModel:         it.AIModel,
		AIText:          it.AIText,
		AIOriginalBytes: aiOriginal,
	}
	if r.Mode == "" {
		r.Mode = record.ModeCompress
	}
	if r.OutputFormat == "" {
		r.OutputFormat = codec.FormatOriginal
	}
	if r.OriginalType == "" {
		r.OriginalType = sniffMime(original)
	}
	if r.ProcessedType == "" {
		r.ProcessedType = sniffMime(processed)
	}
	r.RefreshPreviews()
	return r
}

func safeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}
