package compressor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photo-shrinker-go/internal/codec"
	"photo-shrinker-go/internal/source"
	"photo-shrinker-go/internal/strategy"
)

func newTestEngine() *Engine {
	return NewEngine(codec.NewImagingCodec(), DefaultOptions(), quietLogger())
}

func TestEngineCompressThirdGear(t *testing.T) {
	src, err := source.NewImageSource(gradient(2000, 1500), 0)
	require.NoError(t, err)

	res, err := newTestEngine().Compress(context.Background(), src, strategy.GearThird)
	require.NoError(t, err)
	require.False(t, res.Empty())

	assert.Equal(t, 1000, res.Plan.Width)
	assert.Equal(t, 750, res.Plan.Height)
	assert.Equal(t, int64(60), res.Plan.BudgetKB)
	assert.Equal(t, 2, res.Decision.Factor)
	assert.Equal(t, 1000, res.Width)
	assert.Equal(t, 750, res.Height)
	assert.True(t, res.BudgetMet)
	assert.LessOrEqual(t, res.SizeKB(), res.Plan.BudgetKB)
	assert.NoError(t, res.Err())

	img, err := ToImage(res.Data)
	require.NoError(t, err)
	assert.Equal(t, 1000, img.Bounds().Dx())
	assert.Equal(t, 750, img.Bounds().Dy())
}

func TestEngineCompressRotates(t *testing.T) {
	src, err := source.NewImageSource(gradient(400, 300), 90)
	require.NoError(t, err)

	res, err := newTestEngine().Compress(context.Background(), src, strategy.GearFirst)
	require.NoError(t, err)

	assert.Equal(t, 400, res.Plan.Width)
	assert.Equal(t, 300, res.Plan.Height)
	assert.Equal(t, 300, res.Width)
	assert.Equal(t, 400, res.Height)
}

func TestEngineCompressFitsToPlan(t *testing.T) {
	// 4000x3000 in first gear targets 1706x1280; the power-of-two factor 2
	// decodes 2000x1500, which still has to be fitted into the box
	src := &fakeSource{width: 4000, height: 3000, size: 5 << 20}
	c := newScriptedCodec(func(q int) int { return kb(10) })
	e := NewEngine(c, DefaultOptions(), quietLogger())

	res, err := e.Compress(context.Background(), src, strategy.GearFirst)
	require.NoError(t, err)
	assert.Equal(t, 1706, res.Plan.Width)
	assert.Equal(t, 1280, res.Plan.Height)
	assert.Equal(t, []int{2}, src.decodeCalls())
	assert.Equal(t, 2, res.Decision.Factor)
	assert.Equal(t, 1706, res.Width)
	assert.LessOrEqual(t, res.Height, 1280)
	assert.Equal(t, []int{100}, c.qualities)
}

func TestEngineUnknownGearIsNoop(t *testing.T) {
	src := &fakeSource{width: 100, height: 100, size: 1000}

	res, err := newTestEngine().Compress(context.Background(), src, strategy.Gear(2))
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Empty(t, src.decodeCalls())

	for _, gear := range []strategy.Gear{strategy.GearUnknown, strategy.Gear(2), strategy.Gear(-1)} {
		_, ok := newTestEngine().Plan(src, gear)
		assert.False(t, ok, "gear %d", int(gear))
	}
}

func TestEngineInvalidInput(t *testing.T) {
	e := newTestEngine()

	_, err := e.Compress(context.Background(), nil, strategy.GearThird)
	assert.ErrorIs(t, err, ErrInvalidInput)

	src := &fakeSource{width: 0, height: 100}
	_, err = e.Compress(context.Background(), src, strategy.GearFirst)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, src.decodeCalls())

	_, ok := e.Plan(nil, strategy.GearFirst)
	assert.False(t, ok)
}

func TestEngineCodecFailures(t *testing.T) {
	e := newTestEngine()
	ctx := context.Background()

	probeFail := &fakeSource{width: 100, height: 100, probeErr: errors.New("truncated header")}
	_, err := e.Compress(ctx, probeFail, strategy.GearThird)
	assert.ErrorIs(t, err, ErrCodecFailure)
	assert.Empty(t, probeFail.decodeCalls())

	decodeFail := &fakeSource{width: 100, height: 100, decodeErr: source.ErrNotImage}
	_, err = e.Compress(ctx, decodeFail, strategy.GearThird)
	assert.ErrorIs(t, err, ErrCodecFailure)
	assert.ErrorIs(t, err, source.ErrNotImage)

	panicky := &fakeSource{width: 100, height: 100, decodePanic: true}
	_, err = e.Compress(ctx, panicky, strategy.GearThird)
	assert.ErrorIs(t, err, ErrCodecFailure)

	nilRaster := &fakeSource{width: 100, height: 100, nilRaster: true}
	_, err = e.Compress(ctx, nilRaster, strategy.GearThird)
	assert.ErrorIs(t, err, ErrCodecFailure)
	assert.Equal(t, []int{1}, nilRaster.decodeCalls())
}

func TestEngineBudgetUnreachable(t *testing.T) {
	src := &fakeSource{width: 100, height: 100, size: 1000}
	c := newScriptedCodec(func(q int) int { return kb(900) })
	e := NewEngine(c, Options{MinQuality: 50, QualityStep: 25}, quietLogger())

	res, err := e.Compress(context.Background(), src, strategy.GearThird)
	require.NoError(t, err)
	assert.False(t, res.BudgetMet)
	assert.Equal(t, 50, res.Quality)
	assert.ErrorIs(t, res.Err(), ErrBudgetUnreachable)
	assert.Equal(t, "budget_unreachable", Kind(res.Err()))
}

func TestEnginePlan(t *testing.T) {
	src := &fakeSource{width: 3000, height: 4000, size: 5 << 20, angle: 180}

	plan, ok := newTestEngine().Plan(src, strategy.GearThird)
	require.True(t, ok)
	assert.Equal(t, strategy.ThirdGear(3000, 4000, 180), plan)
}

func TestSaveImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.jpg")

	require.NoError(t, SaveImage(path, []byte("jpeg")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), data)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestToImageRejectsGarbage(t *testing.T) {
	_, err := ToImage([]byte("nope"))
	assert.ErrorIs(t, err, ErrCodecFailure)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "invalid_input", Kind(ErrInvalidInput))
	assert.Equal(t, "codec_failure", Kind(ErrCodecFailure))
	assert.Equal(t, "cancelled", Kind(context.Canceled))
	assert.Equal(t, "unknown", Kind(errors.New("x")))
}
