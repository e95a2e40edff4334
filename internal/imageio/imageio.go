// Package imageio sniffs, decodes and encodes the still images that enter and
// leave a capture session.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/webp"

	apperrors "github.com/anime-shed/id-capture-go/internal/errors"
)

// DefaultJPEGQuality is used for every finalized capture.
const DefaultJPEGQuality = 92

// MaxPixels bounds decoded images; larger inputs are rejected before decoding.
const MaxPixels = 50_000_000

// magicBytes for accepted image types.
var magicBytes = map[string][]byte{
	"image/jpeg": {0xFF, 0xD8, 0xFF},
	"image/png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"image/gif":  {0x47, 0x49, 0x46, 0x38},
	"image/webp": {0x52, 0x49, 0x46, 0x46}, // RIFF....WEBP
}

// DetectType detects the actual image type from magic bytes.
func DetectType(data []byte) (string, error) {
	if len(data) < 12 {
		return "", fmt.Errorf("data too short to detect type")
	}
	switch {
	case bytes.HasPrefix(data, magicBytes["image/jpeg"]):
		return "image/jpeg", nil
	case bytes.HasPrefix(data, magicBytes["image/png"]):
		return "image/png", nil
	case bytes.HasPrefix(data, magicBytes["image/gif"]):
		return "image/gif", nil
	case bytes.HasPrefix(data, magicBytes["image/webp"]) && string(data[8:12]) == "WEBP":
		return "image/webp", nil
	}
	return "", fmt.Errorf("unsupported image type")
}

// Decoded is a decoded still plus what was detected about it.
type Decoded struct {
	Image       image.Image
	ContentType string
	Width       int
	Height      int
}

// Decode validates and decodes raw bytes. JPEG EXIF orientation is applied.
// Every failure is a DecodeError carrying a generic user message.
func Decode(data []byte) (*Decoded, error) {
	contentType, err := DetectType(data)
	if err != nil {
		return nil, apperrors.NewDecodeError("The selected file is not a supported image", err)
	}

	var cfg image.Config
	if contentType == "image/webp" {
		cfg, err = webp.DecodeConfig(bytes.NewReader(data))
	} else {
		cfg, _, err = image.DecodeConfig(bytes.NewReader(data))
	}
	if err != nil {
		return nil, apperrors.NewDecodeError("The selected image could not be read", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, apperrors.NewDecodeError("The selected image is too large",
			fmt.Errorf("dimensions %dx%d exceed limit", cfg.Width, cfg.Height))
	}

	var img image.Image
	if contentType == "image/webp" {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	}
	if err != nil {
		return nil, apperrors.NewDecodeError("The selected image could not be read", err)
	}

	b := img.Bounds()
	return &Decoded{Image: img, ContentType: contentType, Width: b.Dx(), Height: b.Dy()}, nil
}

// ReadAndDecode reads at most limit bytes from r and decodes them.
func ReadAndDecode(r io.Reader, limit int64) (*Decoded, []byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, nil, apperrors.NewDecodeError("The selected image could not be read", err)
	}
	if int64(len(data)) > limit {
		return nil, nil, apperrors.NewDecodeError("The selected image is too large",
			fmt.Errorf("file exceeds %d bytes", limit))
	}
	dec, err := Decode(data)
	if err != nil {
		return nil, nil, err
	}
	return dec, data, nil
}

// EncodeJPEG encodes img at the given quality.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, apperrors.NewProcessingError("failed to encode jpeg", err)
	}
	return buf.Bytes(), nil
}
