// Package source provides the image sources the compressor reads from.
// Every source reports its stored pixel bounds, byte size and orientation
// angle, can probe its bounds without decoding pixels and can decode itself
// at a power-of-two subsample factor.
package source

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format
	_ "image/jpeg" // Register JPEG format
	_ "image/png"  // Register PNG format
	"io"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp" // Register BMP format
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // Register TIFF format
	_ "golang.org/x/image/webp" // Register WebP format
)

// sniffLen is the number of leading bytes filetype needs to match a type.
const sniffLen = 261

var (
	// ErrNotImage is returned when the source bytes are not a known image type.
	ErrNotImage = errors.New("source is not an image")
	// ErrInvalidFactor is returned for subsample factors below one.
	ErrInvalidFactor = errors.New("subsample factor must be >= 1")
)

// Source is the capability interface for a compressible image.
type Source interface {
	// Width and Height are the stored pixel bounds, before any rotation.
	Width() int
	Height() int
	// Size is the source size in bytes.
	Size() int64
	// Angle is the clockwise rotation in degrees needed to display the
	// image upright (0, 90, 180 or 270).
	Angle() int
	// Probe reads the pixel bounds without materialising pixel data.
	Probe() (width, height int, err error)
	// Decode returns the raster downsampled by factor.
	Decode(factor int) (image.Image, error)
}

// Sniff reports the MIME type of header, failing with ErrNotImage for
// anything filetype does not classify as an image.
func Sniff(header []byte) (string, error) {
	if len(header) > sniffLen {
		header = header[:sniffLen]
	}
	if !filetype.IsImage(header) {
		return "", ErrNotImage
	}
	kind, err := filetype.Match(header)
	if err != nil {
		return "", fmt.Errorf("match file type: %w", err)
	}
	return kind.MIME.Value, nil
}

func probe(r io.Reader) (int, int, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image bounds: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func decode(r io.Reader, factor int) (image.Image, error) {
	if factor < 1 {
		return nil, ErrInvalidFactor
	}
	// orientation is applied by the compressor from Angle, not at decode
	img, err := imaging.Decode(r, imaging.AutoOrientation(false))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return Subsample(img, factor), nil
}

// Subsample shrinks img by factor on both axes, rounding up so that no
// side collapses to zero. A factor of one returns img unchanged.
func Subsample(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	w := max(1, (b.Dx()+factor-1)/factor)
	h := max(1, (b.Dy()+factor-1)/factor)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// BytesSource is an encoded image held in memory.
type BytesSource struct {
	data   []byte
	mime   string
	width  int
	height int
	angle  int
}

// NewBytesSource validates data as an image and reads its bounds.
func NewBytesSource(data []byte, angle int) (*BytesSource, error) {
	mime, err := Sniff(data)
	if err != nil {
		return nil, err
	}
	w, h, err := probe(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return &BytesSource{data: data, mime: mime, width: w, height: h, angle: angle}, nil
}

func (s *BytesSource) Width() int   { return s.width }
func (s *BytesSource) Height() int  { return s.height }
func (s *BytesSource) Size() int64  { return int64(len(s.data)) }
func (s *BytesSource) Angle() int   { return s.angle }
func (s *BytesSource) MIME() string { return s.mime }
func (s *BytesSource) Bytes() []byte {
	return s.data
}

// Probe implements Source.
func (s *BytesSource) Probe() (int, int, error) {
	return probe(bytes.NewReader(s.data))
}

// Decode implements Source.
func (s *BytesSource) Decode(factor int) (image.Image, error) {
	return decode(bytes.NewReader(s.data), factor)
}
