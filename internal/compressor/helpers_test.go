package compressor

import (
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"photo-shrinker-go/internal/codec"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// scriptedCodec returns encodings whose length is a function of quality and
// records every quality it was asked for.
type scriptedCodec struct {
	mu        sync.Mutex
	sizeAt    func(quality int) int
	encodeErr error
	qualities []int
	rotations []int
	real      *codec.ImagingCodec
}

func newScriptedCodec(sizeAt func(quality int) int) *scriptedCodec {
	return &scriptedCodec{sizeAt: sizeAt, real: codec.NewImagingCodec()}
}

func (c *scriptedCodec) Encode(img image.Image, quality int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.qualities = append(c.qualities, quality)
	if c.encodeErr != nil {
		return nil, c.encodeErr
	}
	return make([]byte, c.sizeAt(quality)), nil
}

func (c *scriptedCodec) Rotate(img image.Image, angle int) image.Image {
	c.mu.Lock()
	c.rotations = append(c.rotations, angle)
	c.mu.Unlock()
	return c.real.Rotate(img, angle)
}

func (c *scriptedCodec) Fit(img image.Image, width, height int) image.Image {
	return c.real.Fit(img, width, height)
}

// fakeSource is a Source with controllable failures.
type fakeSource struct {
	width, height int
	size          int64
	angle         int
	probeErr      error
	decodeErr     error
	decodePanic   bool
	nilRaster     bool

	mu      sync.Mutex
	factors []int
}

func (s *fakeSource) Width() int  { return s.width }
func (s *fakeSource) Height() int { return s.height }
func (s *fakeSource) Size() int64 { return s.size }
func (s *fakeSource) Angle() int  { return s.angle }

func (s *fakeSource) Probe() (int, int, error) {
	if s.probeErr != nil {
		return 0, 0, s.probeErr
	}
	return s.width, s.height, nil
}

func (s *fakeSource) Decode(factor int) (image.Image, error) {
	s.mu.Lock()
	s.factors = append(s.factors, factor)
	s.mu.Unlock()

	if s.decodePanic {
		panic("corrupt stream")
	}
	if s.decodeErr != nil {
		return nil, s.decodeErr
	}
	if s.nilRaster {
		return nil, nil
	}
	w := max(1, (s.width+factor-1)/factor)
	h := max(1, (s.height+factor-1)/factor)
	return image.NewGray(image.Rect(0, 0, w, h)), nil
}

func (s *fakeSource) decodeCalls() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.factors...)
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(x * 7), uint8(y * 3), uint8((x + y) * 5), 255})
		}
	}
	return img
}
