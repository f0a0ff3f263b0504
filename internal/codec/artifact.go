package codec

import (
	"fmt"

	"lumen/pkg/imgutil"
)

// Artifact is an encoded processing result. Requested is what the caller
// asked for; Kind is the container actually written, which can differ (the
// canvas strategy always writes WebP).
type Artifact struct {
	Data        []byte
	Kind        imgutil.Kind
	Requested   OutputFormat
	Quality     float64
	PaletteSize int
}

func (a *Artifact) Size() int {
	return len(a.Data)
}

func (a *Artifact) MimeType() string {
	return a.Kind.MimeType()
}

// FormatMismatch reports whether the written container differs from an
// explicitly requested one.
func (a *Artifact) FormatMismatch() bool {
	if a.Requested == FormatOriginal || a.Requested == "" {
		return false
	}
	return a.Requested.Kind() != a.Kind
}

// EncodeError reports a container-specific encode failure.
type EncodeError struct {
	Kind imgutil.Kind
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode %s: %v", e.Kind, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
