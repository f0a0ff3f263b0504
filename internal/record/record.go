// Package record defines the processed-image record, the durable unit of
// history that flows from the engines into local history and backups.
package record

import (
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lumen/internal/codec"
	"lumen/pkg/imgutil"
)

// Mode is what was done to the image.
type Mode string

const (
	ModeCompress Mode = "compress"
	ModeEnhance  Mode = "enhance"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeCompress, "":
		return ModeCompress, nil
	case ModeEnhance:
		return ModeEnhance, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// EnhanceMethod says which path produced an enhanced result.
type EnhanceMethod string

const (
	EnhanceAlgorithm EnhanceMethod = "algorithm"
	EnhanceAI        EnhanceMethod = "ai"
)

// GeneratedQuality marks QualityUsed on AI results, which have no strength.
const GeneratedQuality = -1.0

// AIAnalysis is the model's description of the original.
type AIAnalysis struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Record is one processed image. Sizes and the change ratio are always
// derived from the payloads, never stored alongside them.
type Record struct {
	ID        string
	CreatedAt time.Time

	OriginalName  string
	OriginalType  string
	OriginalBytes []byte

	ProcessedType  string
	ProcessedBytes []byte

	OriginalPreview  string
	ProcessedPreview string

	QualityUsed   float64
	Mode          Mode
	EnhanceMethod EnhanceMethod
	OutputFormat  codec.OutputFormat

	Analysis        *AIAnalysis
	AIModel         string
	AIText          string
	AIOriginalBytes []byte

	saved atomic.Bool
}

// New creates an unsaved record around an uploaded original.
func New(name, mimeType string, original []byte) *Record {
	if kind := imgutil.Sniff(original); kind != imgutil.KindUnknown {
		mimeType = kind.MimeType()
	}
	r := &Record{
		ID:            NewID(),
		CreatedAt:     time.Now().Truncate(time.Millisecond),
		OriginalName:  name,
		OriginalType:  mimeType,
		OriginalBytes: original,
		Mode:          ModeCompress,
		OutputFormat:  codec.FormatOriginal,
	}
	r.OriginalPreview = DataURL(r.OriginalType, r.OriginalBytes)
	return r
}

// NewID returns a time-ordered unique identifier (UUIDv7).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (r *Record) OriginalSize() int64 {
	return int64(len(r.OriginalBytes))
}

func (r *Record) ProcessedSize() int64 {
	return int64(len(r.ProcessedBytes))
}

// ChangeRatio is the signed percentage by which processing shrank the
// original.
func (r *Record) ChangeRatio() int {
	return ChangeRatio(r.OriginalSize(), r.ProcessedSize())
}

// ChangeLabel is the human-readable change for the record's mode.
func (r *Record) ChangeLabel() string {
	return ChangeLabel(r.Mode, r.OriginalSize(), r.ProcessedSize())
}

// Processed reports whether the record holds an output.
func (r *Record) Processed() bool {
	return len(r.ProcessedBytes) > 0
}

// IsAI reports whether the current output came from the generative path.
func (r *Record) IsAI() bool {
	return r.Mode == ModeEnhance && r.EnhanceMethod == EnhanceAI
}

// Saved reports whether the record has been committed to history.
func (r *Record) Saved() bool {
	return r.saved.Load()
}

// MarkSaved freezes the record.
func (r *Record) MarkSaved() {
	r.saved.Store(true)
}

// RefreshPreviews regenerates both data-URL renditions from the payloads.
func (r *Record) RefreshPreviews() {
	r.OriginalPreview = DataURL(r.OriginalType, r.OriginalBytes)
	r.ProcessedPreview = ""
	if r.Processed() {
		r.ProcessedPreview = DataURL(r.ProcessedType, r.ProcessedBytes)
	}
}

// ChangeRatio returns round((original-processed)/original*100), or 0 for an
// empty original.
func ChangeRatio(original, processed int64) int {
	if original <= 0 {
		return 0
	}
	return int(math.Round(float64(original-processed) / float64(original) * 100))
}

// ChangeLabel formats a size change. Compression reports the saving ("60%"),
// enhancement reports growth with an explicit sign ("+20%", "-5%").
func ChangeLabel(mode Mode, original, processed int64) string {
	if mode != ModeEnhance {
		return fmt.Sprintf("%d%%", ChangeRatio(original, processed))
	}
	growth := -ChangeRatio(original, processed)
	if growth > 0 {
		return fmt.Sprintf("+%d%%", growth)
	}
	return fmt.Sprintf("%d%%", growth)
}

// DataURL renders data as a base64 data URL.
func DataURL(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = imgutil.Sniff(data).MimeType()
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL is the inverse of DataURL.
func DecodeDataURL(s string) (mimeType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("data URL has no payload")
	}
	mimeType, ok = strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("data URL is not base64")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL: %w", err)
	}
	return mimeType, data, nil
}
