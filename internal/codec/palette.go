package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/ericpauley/go-quantize/quantize"

	"lumen/pkg/imgutil"
)

var (
	errNotLossy     = errors.New("container has no lossy mode")
	errEmptyPalette = errors.New("quantizer produced an empty palette")
)

// PalettePNG encodes lossy PNGs by reducing the image to a quality-derived
// palette. Quantizer defaults to median cut.
type PalettePNG struct {
	Quantizer draw.Quantizer
}

// NewPalettePNG returns an encoder backed by a median-cut quantizer.
func NewPalettePNG() *PalettePNG {
	return &PalettePNG{Quantizer: quantize.MedianCutQuantizer{}}
}

// Encode quantizes img to PaletteSize(q) colours. When quantized encoding
// fails it falls back to a full-colour PNG; only a failure of that fallback
// is returned. PaletteSize on the artifact is 0 after a fallback.
func (p *PalettePNG) Encode(img image.Image, q float64, requested OutputFormat) (*Artifact, error) {
	colors := PaletteSize(q)

	data, err := p.encodeQuantized(img, colors)
	if err == nil {
		return &Artifact{Data: data, Kind: imgutil.KindPNG, Requested: requested, Quality: q, PaletteSize: colors}, nil
	}

	data, err = EncodePNG(img)
	if err != nil {
		return nil, err
	}
	return &Artifact{Data: data, Kind: imgutil.KindPNG, Requested: requested, Quality: q}, nil
}

func (p *PalettePNG) encodeQuantized(img image.Image, colors int) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = &EncodeError{Kind: imgutil.KindPNG, Err: fmt.Errorf("quantize: %v", r)}
		}
	}()

	quantizer := p.Quantizer
	if quantizer == nil {
		quantizer = quantize.MedianCutQuantizer{}
	}

	palette := quantizer.Quantize(make(color.Palette, 0, colors), img)
	if len(palette) == 0 {
		return nil, &EncodeError{Kind: imgutil.KindPNG, Err: errEmptyPalette}
	}
	if len(palette) > colors {
		palette = palette[:colors]
	}

	bounds := img.Bounds()
	paletted := image.NewPaletted(image.Rect(0, 0, bounds.Dx(), bounds.Dy()), palette)
	draw.Draw(paletted, paletted.Bounds(), img, bounds.Min, draw.Src)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, paletted); err != nil {
		return nil, &EncodeError{Kind: imgutil.KindPNG, Err: err}
	}
	return buf.Bytes(), nil
}
