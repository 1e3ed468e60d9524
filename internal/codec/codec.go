// Package codec wraps the raster operations the compressor drives: JPEG
// encoding at a given quality, clockwise rotation and fitting into a box.
package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

const (
	MinQuality = 1
	MaxQuality = 100
)

// Codec is the image codec capability consumed by the compressor.
type Codec interface {
	// Encode re-encodes img as JPEG at quality (1..100).
	Encode(img image.Image, quality int) ([]byte, error)
	// Rotate returns img rotated clockwise by angle degrees, expanding the
	// canvas as needed. A zero angle returns img unchanged.
	Rotate(img image.Image, angle int) image.Image
	// Fit scales img down so it fits inside width x height, keeping the
	// aspect ratio. Images already inside the box are returned unchanged.
	Fit(img image.Image, width, height int) image.Image
}

// ImagingCodec implements Codec on top of disintegration/imaging and nfnt/resize.
type ImagingCodec struct {
	interp resize.InterpolationFunction
}

// NewImagingCodec returns a codec that resizes with Lanczos3.
func NewImagingCodec() *ImagingCodec {
	return &ImagingCodec{interp: resize.Lanczos3}
}

// Encode implements Codec.
func (c *ImagingCodec) Encode(img image.Image, quality int) ([]byte, error) {
	if img == nil {
		return nil, fmt.Errorf("encode: nil image")
	}
	quality = min(max(quality, MinQuality), MaxQuality)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg at quality %d: %w", quality, err)
	}
	return buf.Bytes(), nil
}

// Rotate implements Codec. imaging rotates counter-clockwise, so the
// clockwise angle is mirrored.
func (c *ImagingCodec) Rotate(img image.Image, angle int) image.Image {
	switch NormalizeAngle(angle) {
	case 0:
		return img
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return imaging.Rotate(img, float64(360-NormalizeAngle(angle)), color.Black)
	}
}

// Fit implements Codec.
func (c *ImagingCodec) Fit(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if width <= 0 || height <= 0 || (b.Dx() <= width && b.Dy() <= height) {
		return img
	}
	return resize.Thumbnail(uint(width), uint(height), img, c.interp)
}

// NormalizeAngle maps any angle in degrees into [0, 360).
func NormalizeAngle(angle int) int {
	return (angle%360 + 360) % 360
}
