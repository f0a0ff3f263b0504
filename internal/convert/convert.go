// Package convert re-encodes finished artifacts into another container
// without re-running compression or enhancement.
package convert

import (
	"bytes"
	"context"
	"image"

	"lumen/internal/codec"
	"lumen/internal/raster"
	"lumen/pkg/imgutil"
)

// Converter changes the container of an encoded image. The pixels it
// re-encodes are exactly those stored in the input blob: no bounding, no
// orientation handling. PNG and WebP targets are written losslessly, JPEG
// at full encoder quality.
type Converter struct{}

func New() Converter {
	return Converter{}
}

// Convert returns data re-encoded as format. FormatOriginal, or a format
// that matches the blob's own container, hands back the input unchanged.
func (Converter) Convert(ctx context.Context, data []byte, format codec.OutputFormat) (*codec.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	source := imgutil.Sniff(data)
	target := format.Kind()
	if target == imgutil.KindUnknown || target == source {
		if source == imgutil.KindUnknown {
			return nil, &raster.DecodeError{Kind: source, Err: image.ErrFormat}
		}
		return &codec.Artifact{Data: data, Kind: source, Requested: format, Quality: 1}, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &raster.DecodeError{Kind: source, Err: err}
	}
	buf := raster.FromImage(img)

	return Encode(buf, target, format)
}

// Encode writes buf to target at maximum fidelity.
func Encode(buf *raster.PixelBuffer, target imgutil.Kind, requested codec.OutputFormat) (*codec.Artifact, error) {
	var (
		out []byte
		err error
	)
	switch target {
	case imgutil.KindPNG:
		out, err = codec.EncodePNG(buf.Image())
	case imgutil.KindWebP:
		out, err = codec.EncodeWebP(buf.Image(), 1, true)
	case imgutil.KindJPEG:
		out, err = codec.EncodeJPEG(buf.Image(), 1)
	default:
		return nil, &codec.EncodeError{Kind: target, Err: image.ErrFormat}
	}
	if err != nil {
		return nil, err
	}
	return &codec.Artifact{Data: out, Kind: target, Requested: requested, Quality: 1}, nil
}
