package codec

import (
	"bytes"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"

	"lumen/pkg/imgutil"
)

// webpMethod trades encode speed for size (0 fast .. 6 slow).
const webpMethod = 4

// EncodeJPEG writes img as baseline JPEG at quality q (0..1, used as given).
func EncodeJPEG(img image.Image, q float64) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(max(EncoderQuality(q), 1))); err != nil {
		return nil, &EncodeError{Kind: imgutil.KindJPEG, Err: err}
	}
	return buf.Bytes(), nil
}

// EncodePNG writes img as a lossless, full-colour PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, &EncodeError{Kind: imgutil.KindPNG, Err: err}
	}
	return buf.Bytes(), nil
}

// EncodeWebP writes img as lossy WebP at quality q, or lossless WebP.
func EncodeWebP(img image.Image, q float64, lossless bool) ([]byte, error) {
	var buf bytes.Buffer
	opts := webp.Options{
		Quality:  EncoderQuality(q),
		Lossless: lossless,
		Method:   webpMethod,
	}
	if err := webp.Encode(&buf, img, opts); err != nil {
		return nil, &EncodeError{Kind: imgutil.KindWebP, Err: err}
	}
	return buf.Bytes(), nil
}

// EncodeLossy encodes to a lossy container with the HighQuality clamp
// applied to q. Only JPEG and WebP are accepted.
func EncodeLossy(img image.Image, kind imgutil.Kind, q float64, requested OutputFormat) (*Artifact, error) {
	eff := EffectiveQuality(q)

	var (
		data []byte
		err  error
	)
	switch kind {
	case imgutil.KindJPEG:
		data, err = EncodeJPEG(img, eff)
	case imgutil.KindWebP:
		data, err = EncodeWebP(img, eff, false)
	default:
		return nil, &EncodeError{Kind: kind, Err: errNotLossy}
	}
	if err != nil {
		return nil, err
	}

	return &Artifact{Data: data, Kind: kind, Requested: requested, Quality: eff}, nil
}
