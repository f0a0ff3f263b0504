// Package enhance implements the detail-enhancement strategies: a
// deterministic sharpening kernel and regeneration through a generative
// model.
package enhance

import (
	"math"

	"lumen/internal/raster"
)

// Sharpen applies a 4-neighbour Laplacian kernel (5*centre - up - down -
// left - right) to every interior pixel's colour channels and blends the
// result with the original by intensity:
//
//	out = clamp(kernel*intensity + orig*(1-intensity), 0, 255)
//
// The 1-pixel border and the alpha channel are copied unchanged. Intensity
// is clamped to [0, 1]; at 0 the input is returned as an untouched copy.
func Sharpen(src *raster.PixelBuffer, intensity float64) *raster.PixelBuffer {
	out := src.Clone()
	if math.IsNaN(intensity) || intensity <= 0 {
		return out
	}
	if intensity > 1 {
		intensity = 1
	}

	w, h := src.Width, src.Height
	stride := w * 4
	pix := src.Pix
	keep := 1 - intensity

	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := (y*w + x) * 4
			for c := 0; c < 3; c++ {
				center := int(pix[i+c])
				kernel := center*5 -
					int(pix[i+c-stride]) -
					int(pix[i+c+stride]) -
					int(pix[i+c-4]) -
					int(pix[i+c+4])
				v := float64(kernel)*intensity + float64(center)*keep
				out.Pix[i+c] = clampByte(v)
			}
		}
	}
	return out
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.RoundToEven(v))
}
