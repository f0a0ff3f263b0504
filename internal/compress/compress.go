// Package compress implements the two size-reduction strategies.
package compress

import (
	"context"
	"fmt"
	"strings"

	"lumen/internal/codec"
	"lumen/internal/raster"
	"lumen/pkg/imgutil"
)

// Engine names a compression strategy.
type Engine string

const (
	EngineCanvas    Engine = "canvas"
	EngineAlgorithm Engine = "algorithm"
)

func ParseEngine(s string) (Engine, error) {
	switch Engine(strings.ToLower(strings.TrimSpace(s))) {
	case EngineCanvas:
		return EngineCanvas, nil
	case EngineAlgorithm, "":
		return EngineAlgorithm, nil
	default:
		return "", fmt.Errorf("unknown compression engine %q", s)
	}
}

// Compressor turns a pixel buffer into an encoded artifact. Implementations
// hold no mutable state and may be shared across goroutines.
type Compressor interface {
	Engine() Engine
	Compress(ctx context.Context, buf *raster.PixelBuffer, source imgutil.Kind, quality float64, format codec.OutputFormat) (*codec.Artifact, error)
}

// New returns the strategy for engine.
func New(engine Engine) (Compressor, error) {
	switch engine {
	case EngineCanvas:
		return Canvas{}, nil
	case EngineAlgorithm:
		return NewAlgorithm(), nil
	default:
		return nil, fmt.Errorf("unknown compression engine %q", engine)
	}
}

// Canvas always writes lossy WebP, whatever format was requested. The
// returned artifact keeps the request so callers can surface the mismatch.
type Canvas struct{}

func (Canvas) Engine() Engine { return EngineCanvas }

func (Canvas) Compress(ctx context.Context, buf *raster.PixelBuffer, _ imgutil.Kind, quality float64, format codec.OutputFormat) (*codec.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return codec.EncodeLossy(buf.Image(), imgutil.KindWebP, quality, format)
}

// Algorithm honours the requested container: palette-quantized PNG, or
// lossy JPEG/WebP.
type Algorithm struct {
	png *codec.PalettePNG
}

func NewAlgorithm() *Algorithm {
	return &Algorithm{png: codec.NewPalettePNG()}
}

// NewAlgorithmWithPNG lets callers supply their own palette encoder.
func NewAlgorithmWithPNG(png *codec.PalettePNG) *Algorithm {
	return &Algorithm{png: png}
}

func (a *Algorithm) Engine() Engine { return EngineAlgorithm }

func (a *Algorithm) Compress(ctx context.Context, buf *raster.PixelBuffer, source imgutil.Kind, quality float64, format codec.OutputFormat) (*codec.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target := ResolveTarget(format, source)
	if target == imgutil.KindPNG {
		return a.png.Encode(buf.Image(), quality, format)
	}
	return codec.EncodeLossy(buf.Image(), target, quality, format)
}

// ResolveTarget picks the container for the algorithm strategy. An explicit
// format wins; "original" keeps PNG and JPEG sources in their container and
// sends everything else to WebP.
func ResolveTarget(format codec.OutputFormat, source imgutil.Kind) imgutil.Kind {
	if kind := format.Kind(); kind != imgutil.KindUnknown {
		return kind
	}
	switch source {
	case imgutil.KindPNG:
		return imgutil.KindPNG
	case imgutil.KindJPEG:
		return imgutil.KindJPEG
	default:
		return imgutil.KindWebP
	}
}
