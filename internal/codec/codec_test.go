package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/pkg/imgutil"
)

func TestPaletteSize(t *testing.T) {
	cases := map[float64]int{
		0:     2,
		0.001: 2,
		0.05:  13,
		0.5:   128,
		0.8:   205,
		0.95:  243,
		1:     256,
		1.5:   256,
		-0.2:  2,
	}
	for q, want := range cases {
		assert.Equal(t, want, PaletteSize(q), "quality %v", q)
	}
}

func TestPaletteSizeAcrossSliderSteps(t *testing.T) {
	for step := 0; step <= 20; step++ {
		q := float64(step) * 0.05
		n := PaletteSize(q)
		assert.GreaterOrEqual(t, n, MinPaletteSize)
		assert.LessOrEqual(t, n, MaxPaletteSize)
	}
}

func TestEffectiveQualityClampsToHighQuality(t *testing.T) {
	assert.Equal(t, HighQuality, EffectiveQuality(1))
	assert.Equal(t, HighQuality, EffectiveQuality(1.2))
	assert.Equal(t, 0.5, EffectiveQuality(0.5))
	assert.Equal(t, 0.0, EffectiveQuality(-1))
	assert.Equal(t, 92, EncoderQuality(EffectiveQuality(1)))
}

func TestPalettePNGProducesBoundedPalette(t *testing.T) {
	img := noisy(32, 32)

	for _, q := range []float64{0, 0.25, 1} {
		art, err := NewPalettePNG().Encode(img, q, FormatPNG)
		require.NoError(t, err)

		assert.Equal(t, imgutil.KindPNG, art.Kind)
		assert.Equal(t, PaletteSize(q), art.PaletteSize)
		assert.Equal(t, imgutil.KindPNG, imgutil.Sniff(art.Data))

		decoded, err := png.Decode(bytes.NewReader(art.Data))
		require.NoError(t, err)
		paletted, ok := decoded.(*image.Paletted)
		require.True(t, ok, "expected a paletted PNG, got %T", decoded)
		assert.LessOrEqual(t, len(paletted.Palette), PaletteSize(q))
		assert.Equal(t, img.Bounds().Size(), paletted.Bounds().Size())
	}
}

type panickingQuantizer struct{}

func (panickingQuantizer) Quantize(color.Palette, image.Image) color.Palette {
	panic("boom")
}

type emptyQuantizer struct{}

func (emptyQuantizer) Quantize(p color.Palette, _ image.Image) color.Palette {
	return p
}

func TestPalettePNGFallsBackToFullColour(t *testing.T) {
	img := noisy(8, 8)

	for _, enc := range []*PalettePNG{{Quantizer: panickingQuantizer{}}, {Quantizer: emptyQuantizer{}}} {
		art, err := enc.Encode(img, 0.3, FormatPNG)
		require.NoError(t, err)
		assert.Equal(t, 0, art.PaletteSize)

		decoded, err := png.Decode(bytes.NewReader(art.Data))
		require.NoError(t, err)
		_, paletted := decoded.(*image.Paletted)
		assert.False(t, paletted)
	}
}

func TestEncodeLossy(t *testing.T) {
	img := noisy(16, 16)

	art, err := EncodeLossy(img, imgutil.KindWebP, 1, FormatPNG)
	require.NoError(t, err)
	assert.Equal(t, imgutil.KindWebP, imgutil.Sniff(art.Data))
	assert.Equal(t, HighQuality, art.Quality)
	assert.True(t, art.FormatMismatch())

	art, err = EncodeLossy(img, imgutil.KindJPEG, 0.4, FormatJPEG)
	require.NoError(t, err)
	assert.Equal(t, imgutil.KindJPEG, imgutil.Sniff(art.Data))
	assert.Equal(t, "image/jpeg", art.MimeType())
	assert.False(t, art.FormatMismatch())

	_, err = EncodeLossy(img, imgutil.KindPNG, 0.4, FormatPNG)
	var encErr *EncodeError
	require.ErrorAs(t, err, &encErr)
}

func TestParseOutputFormat(t *testing.T) {
	for in, want := range map[string]OutputFormat{"": FormatOriginal, "JPG": FormatJPEG, "webp": FormatWebP, "png": FormatPNG} {
		got, err := ParseOutputFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseOutputFormat("avif")
	assert.Error(t, err)
}

func noisy(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	seed := uint32(7)
	for i := 0; i < len(img.Pix); i += 4 {
		seed = seed*1664525 + 1013904223
		img.Pix[i] = uint8(seed >> 24)
		img.Pix[i+1] = uint8(seed >> 16)
		img.Pix[i+2] = uint8(seed >> 8)
		img.Pix[i+3] = 255
	}
	return img
}
