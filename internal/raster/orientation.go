package raster

import (
	"image"
	"strconv"

	"github.com/disintegration/imaging"
	exif "github.com/dsoprea/go-exif/v3"
)

const orientationTagID = 0x0112

// readOrientation returns the EXIF Orientation value (1-8), or 1 when the
// payload carries no usable EXIF block.
func readOrientation(data []byte) (orientation int) {
	orientation = 1
	defer func() {
		// go-exif reports some malformed blocks by panicking.
		if r := recover(); r != nil {
			orientation = 1
		}
	}()

	raw, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return 1
	}
	tags, _, err := exif.GetFlatExifData(raw, nil)
	if err != nil {
		return 1
	}

	for _, tag := range tags {
		if tag.TagId != orientationTagID || tag.IfdPath != "IFD" {
			continue
		}
		value := 0
		switch v := tag.Value.(type) {
		case []uint16:
			if len(v) > 0 {
				value = int(v[0])
			}
		default:
			if parsed, err := strconv.Atoi(tag.FormattedFirst); err == nil {
				value = parsed
			}
		}
		if value >= 1 && value <= 8 {
			return value
		}
		return 1
	}
	return 1
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return img
	}
}
