package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noisyImage(w, h int) *image.NRGBA {
	rng := rand.New(rand.NewSource(42))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	return img
}

func TestEncodeRoundTripKeepsDimensions(t *testing.T) {
	c := NewImagingCodec()
	src := noisyImage(123, 77)

	data, err := c.Encode(src, 100)
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 123, decoded.Bounds().Dx())
	assert.Equal(t, 77, decoded.Bounds().Dy())
}

func TestEncodeLowerQualityIsSmaller(t *testing.T) {
	c := NewImagingCodec()
	src := noisyImage(64, 64)

	high, err := c.Encode(src, 100)
	require.NoError(t, err)
	low, err := c.Encode(src, 10)
	require.NoError(t, err)
	assert.Less(t, len(low), len(high))
}

func TestEncodeNilImage(t *testing.T) {
	_, err := NewImagingCodec().Encode(nil, 80)
	assert.Error(t, err)
}

func TestRotateIsClockwise(t *testing.T) {
	red := color.NRGBA{255, 0, 0, 255}
	blue := color.NRGBA{0, 0, 255, 255}

	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, red)
	src.Set(1, 0, blue)

	c := NewImagingCodec()
	rotated := c.Rotate(src, 90)
	require.Equal(t, 1, rotated.Bounds().Dx())
	require.Equal(t, 2, rotated.Bounds().Dy())
	assert.Equal(t, red, color.NRGBAModel.Convert(rotated.At(0, 0)))
	assert.Equal(t, blue, color.NRGBAModel.Convert(rotated.At(0, 1)))

	rotated = c.Rotate(src, 270)
	assert.Equal(t, blue, color.NRGBAModel.Convert(rotated.At(0, 0)))
	assert.Equal(t, red, color.NRGBAModel.Convert(rotated.At(0, 1)))
}

func TestRotateAngles(t *testing.T) {
	c := NewImagingCodec()
	src := noisyImage(40, 20)

	assert.Same(t, src, c.Rotate(src, 0))
	assert.Same(t, src, c.Rotate(src, 360))

	for angle, want := range map[int]image.Point{90: {20, 40}, 180: {40, 20}, 270: {20, 40}, -90: {20, 40}} {
		b := c.Rotate(src, angle).Bounds()
		assert.Equal(t, want, image.Pt(b.Dx(), b.Dy()), "angle %d", angle)
	}
}

func TestFit(t *testing.T) {
	c := NewImagingCodec()
	src := noisyImage(400, 200)

	fitted := c.Fit(src, 100, 100)
	assert.Equal(t, 100, fitted.Bounds().Dx())
	assert.Equal(t, 50, fitted.Bounds().Dy())

	assert.Same(t, src, c.Fit(src, 400, 200))
	assert.Same(t, src, c.Fit(src, 0, 0))
}

func TestNormalizeAngle(t *testing.T) {
	assert.Equal(t, 0, NormalizeAngle(0))
	assert.Equal(t, 270, NormalizeAngle(-90))
	assert.Equal(t, 90, NormalizeAngle(450))
}
