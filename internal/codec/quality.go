package codec

import "math"

// HighQuality replaces any requested quality >= 1. A lossy container never
// becomes lossless by asking for 1.0.
const HighQuality = 0.92

const (
	MinPaletteSize = 2
	MaxPaletteSize = 256
)

// EffectiveQuality clamps q into [0, 1] and applies the HighQuality rule.
func EffectiveQuality(q float64) float64 {
	if math.IsNaN(q) || q <= 0 {
		return 0
	}
	if q >= 1 {
		return HighQuality
	}
	return q
}

// EncoderQuality maps a 0..1 scalar onto the 0..100 scale the encoders use.
func EncoderQuality(q float64) int {
	n := int(math.Round(q * 100))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// PaletteSize maps quality linearly onto a palette size:
// clamp(round(q*256), 2, 256).
func PaletteSize(q float64) int {
	if math.IsNaN(q) {
		return MinPaletteSize
	}
	n := int(math.Round(q * MaxPaletteSize))
	if n < MinPaletteSize {
		return MinPaletteSize
	}
	if n > MaxPaletteSize {
		return MaxPaletteSize
	}
	return n
}
