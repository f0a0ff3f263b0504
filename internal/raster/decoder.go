package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"lumen/pkg/imgutil"
)

// DefaultMaxDimension bounds the largest side of a decoded raster.
const DefaultMaxDimension = 4096

// DecodeError reports unreadable or corrupt input.
type DecodeError struct {
	Kind imgutil.Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s image: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var errEmptyInput = errors.New("empty input")

// Decoded is the result of a decode: the bounded buffer plus what the
// source looked like before bounding.
type Decoded struct {
	Buffer        *PixelBuffer
	Kind          imgutil.Kind
	NaturalWidth  int
	NaturalHeight int
	Orientation   int
}

// Scaled reports whether the raster was reduced to fit the bound.
func (d *Decoded) Scaled() bool {
	return d.Buffer.Width != d.NaturalWidth || d.Buffer.Height != d.NaturalHeight
}

// Decoder decodes image bytes and bounds them to MaxDimension.
type Decoder struct {
	MaxDimension int
}

// NewDecoder returns a decoder with the given bound; values <= 0 select
// DefaultMaxDimension.
func NewDecoder(maxDimension int) Decoder {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	return Decoder{MaxDimension: maxDimension}
}

// Decode rasterizes data. The container is sniffed from the bytes; mime is
// only consulted when sniffing fails. A failure is always a *DecodeError.
func (d Decoder) Decode(data []byte, mime string) (*Decoded, error) {
	kind := imgutil.Sniff(data)
	if kind == imgutil.KindUnknown {
		kind = imgutil.KindFromMime(mime)
	}
	if len(data) == 0 {
		return nil, &DecodeError{Kind: kind, Err: errEmptyInput}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Kind: kind, Err: err}
	}

	orientation := 1
	if kind == imgutil.KindJPEG || kind == imgutil.KindTIFF || kind == imgutil.KindWebP {
		orientation = readOrientation(data)
	}
	img = applyOrientation(img, orientation)

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, &DecodeError{Kind: kind, Err: fmt.Errorf("invalid dimensions %dx%d", b.Dx(), b.Dy())}
	}

	maxDim := d.MaxDimension
	if maxDim <= 0 {
		maxDim = DefaultMaxDimension
	}
	width, height := Fit(b.Dx(), b.Dy(), maxDim)

	var buf *PixelBuffer
	if width != b.Dx() || height != b.Dy() {
		resized := imaging.Resize(img, width, height, imaging.Lanczos)
		buf = &PixelBuffer{Width: width, Height: height, Pix: resized.Pix}
	} else {
		buf = FromImage(img)
	}

	return &Decoded{
		Buffer:        buf,
		Kind:          kind,
		NaturalWidth:  b.Dx(),
		NaturalHeight: b.Dy(),
		Orientation:   orientation,
	}, nil
}

// Fit scales (width, height) down so the larger side equals maxDim,
// preserving aspect ratio and rounding the other side. Sizes already within
// the bound are returned unchanged.
func Fit(width, height, maxDim int) (int, int) {
	if width <= maxDim && height <= maxDim {
		return width, height
	}
	if width >= height {
		h := int(math.Round(float64(height) * float64(maxDim) / float64(width)))
		return maxDim, max(h, 1)
	}
	w := int(math.Round(float64(width) * float64(maxDim) / float64(height)))
	return max(w, 1), maxDim
}
