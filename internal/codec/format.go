// Package codec holds the container encoders shared by the compression,
// enhancement and conversion engines, plus the Artifact they all produce.
package codec

import (
	"fmt"
	"strings"

	"lumen/pkg/imgutil"
)

// OutputFormat is the container a caller asks for.
type OutputFormat string

const (
	FormatOriginal OutputFormat = "original"
	FormatWebP     OutputFormat = "webp"
	FormatPNG      OutputFormat = "png"
	FormatJPEG     OutputFormat = "jpeg"
)

// ParseOutputFormat accepts the enum values plus "jpg"; empty means original.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "original":
		return FormatOriginal, nil
	case "webp":
		return FormatWebP, nil
	case "png":
		return FormatPNG, nil
	case "jpeg", "jpg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatOriginal, FormatWebP, FormatPNG, FormatJPEG:
		return true
	}
	return false
}

// Kind maps a concrete format to its container. FormatOriginal has no
// container of its own and reports KindUnknown.
func (f OutputFormat) Kind() imgutil.Kind {
	switch f {
	case FormatWebP:
		return imgutil.KindWebP
	case FormatPNG:
		return imgutil.KindPNG
	case FormatJPEG:
		return imgutil.KindJPEG
	default:
		return imgutil.KindUnknown
	}
}

// FormatForKind is the inverse of Kind for the three encodable containers.
func FormatForKind(kind imgutil.Kind) (OutputFormat, bool) {
	switch kind {
	case imgutil.KindWebP:
		return FormatWebP, true
	case imgutil.KindPNG:
		return FormatPNG, true
	case imgutil.KindJPEG:
		return FormatJPEG, true
	default:
		return "", false
	}
}
