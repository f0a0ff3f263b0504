package imgutil

import (
	"errors"
	"io"
	"os"
	"strings"
)

// Kind identifies a supported image container.
type Kind int

const (
	KindUnknown Kind = iota
	KindJPEG
	KindPNG
	KindWebP
	KindGIF
	KindBMP
	KindTIFF
)

func (k Kind) String() string {
	switch k {
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	case KindWebP:
		return "webp"
	case KindGIF:
		return "gif"
	case KindBMP:
		return "bmp"
	case KindTIFF:
		return "tiff"
	default:
		return "unknown"
	}
}

// MimeType returns the IANA media type for k, or application/octet-stream.
func (k Kind) MimeType() string {
	switch k {
	case KindJPEG:
		return "image/jpeg"
	case KindPNG:
		return "image/png"
	case KindWebP:
		return "image/webp"
	case KindGIF:
		return "image/gif"
	case KindBMP:
		return "image/bmp"
	case KindTIFF:
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the conventional file extension for k, including the dot.
func (k Kind) Extension() string {
	switch k {
	case KindJPEG:
		return ".jpg"
	case KindUnknown:
		return ".bin"
	default:
		return "." + k.String()
	}
}

// KindFromMime maps a media type such as "image/png" to a Kind.
func KindFromMime(mime string) Kind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return KindJPEG
	case "image/png":
		return KindPNG
	case "image/webp":
		return KindWebP
	case "image/gif":
		return KindGIF
	case "image/bmp", "image/x-ms-bmp":
		return KindBMP
	case "image/tiff":
		return KindTIFF
	default:
		return KindUnknown
	}
}

var (
	pngSig    = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegSig   = []byte{0xff, 0xd8, 0xff}
	tiffSigLE = []byte{0x49, 0x49, 0x2a, 0x00}
	tiffSigBE = []byte{0x4d, 0x4d, 0x00, 0x2a}
	gifSig    = []byte("GIF8")
	bmpSig    = []byte("BM")
	riffSig   = []byte("RIFF")
	webpSig   = []byte("WEBP")
)

// HeaderSize is the number of leading bytes needed to tell every Kind apart.
const HeaderSize = 12

// DetectHeader inspects the first bytes of a file for known signatures.
func DetectHeader(header []byte) (Kind, error) {
	if len(header) < 8 {
		return KindUnknown, errors.New("header too short")
	}

	if hasPrefix(header, jpegSig) {
		return KindJPEG, nil
	}
	if hasPrefix(header, pngSig) {
		return KindPNG, nil
	}
	if len(header) >= HeaderSize && hasPrefix(header, riffSig) && hasPrefix(header[8:], webpSig) {
		return KindWebP, nil
	}
	if hasPrefix(header, gifSig) {
		return KindGIF, nil
	}
	if hasPrefix(header, tiffSigLE) || hasPrefix(header, tiffSigBE) {
		return KindTIFF, nil
	}
	if hasPrefix(header, bmpSig) {
		return KindBMP, nil
	}

	return KindUnknown, nil
}

// Sniff determines the container of an in-memory payload. Short or
// unrecognized payloads report KindUnknown.
func Sniff(data []byte) Kind {
	if len(data) > HeaderSize {
		data = data[:HeaderSize]
	}
	kind, err := DetectHeader(data)
	if err != nil {
		return KindUnknown
	}
	return kind
}

// SniffFile reads the first bytes of a file to determine its type.
func SniffFile(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	return SniffReader(f)
}

// SniffReader reads the first bytes from r and determines its type.
func SniffReader(r io.Reader) (Kind, error) {
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return KindUnknown, err
	}

	return DetectHeader(header[:n])
}

func hasPrefix(buf, prefix []byte) bool {
	if len(buf) < len(prefix) {
		return false
	}
	for i := range prefix {
		if buf[i] != prefix[i] {
			return false
		}
	}
	return true
}
