package source

import (
	"errors"
	"image"
)

// ImageSource wraps an already decoded raster. Its Size is the raw pixel
// byte count (four bytes per pixel) since there is no encoded form.
type ImageSource struct {
	img   image.Image
	angle int
}

// NewImageSource wraps img. It fails for nil or empty rasters.
func NewImageSource(img image.Image, angle int) (*ImageSource, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, errors.New("empty raster")
	}
	return &ImageSource{img: img, angle: angle}, nil
}

func (s *ImageSource) Width() int  { return s.img.Bounds().Dx() }
func (s *ImageSource) Height() int { return s.img.Bounds().Dy() }
func (s *ImageSource) Angle() int  { return s.angle }

func (s *ImageSource) Size() int64 {
	return int64(s.Width()) * int64(s.Height()) * 4
}

// Probe implements Source.
func (s *ImageSource) Probe() (int, int, error) {
	return s.Width(), s.Height(), nil
}

// Decode implements Source.
func (s *ImageSource) Decode(factor int) (image.Image, error) {
	if factor < 1 {
		return nil, ErrInvalidFactor
	}
	return Subsample(s.img, factor), nil
}
