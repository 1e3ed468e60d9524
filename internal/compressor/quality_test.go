package compressor

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kb(n int) int { return n * 1024 }

func TestReduceUnderBudgetEncodesOnce(t *testing.T) {
	c := newScriptedCodec(func(q int) int { return kb(40) })
	r := NewQualityReducer(c, DefaultMinQuality, DefaultQualityStep, quietLogger())

	red, err := r.Reduce(context.Background(), image.NewGray(image.Rect(0, 0, 10, 10)), 0, 60)
	require.NoError(t, err)
	assert.Equal(t, []int{100}, c.qualities)
	assert.Equal(t, 100, red.Quality)
	assert.Equal(t, 1, red.Attempts)
	assert.True(t, red.BudgetMet)
	assert.Empty(t, c.rotations)
}

func TestReduceStepsDownUntilBudget(t *testing.T) {
	// 200KB at quality 100, 2KB per quality point
	c := newScriptedCodec(func(q int) int { return kb(2 * q) })
	r := NewQualityReducer(c, DefaultMinQuality, DefaultQualityStep, quietLogger())

	red, err := r.Reduce(context.Background(), image.NewGray(image.Rect(0, 0, 10, 10)), 0, 80)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 94, 88, 82, 76, 70, 64, 58, 52, 46, 40}, c.qualities)
	assert.Equal(t, 40, red.Quality)
	assert.Equal(t, 11, red.Attempts)
	assert.True(t, red.BudgetMet)
	assert.LessOrEqual(t, int64(len(red.Data))/1024, int64(80))
}

func TestReduceStopsAtQualityFloor(t *testing.T) {
	c := newScriptedCodec(func(q int) int { return kb(500) + q })
	r := NewQualityReducer(c, DefaultMinQuality, DefaultQualityStep, quietLogger())

	red, err := r.Reduce(context.Background(), image.NewGray(image.Rect(0, 0, 10, 10)), 0, 10)
	require.NoError(t, err)
	assert.False(t, red.BudgetMet)
	assert.Equal(t, 1, red.Quality)
	assert.Len(t, red.Data, kb(500)+1)
	assert.Equal(t, 18, red.Attempts)

	qs := c.qualities
	assert.Equal(t, 100, qs[0])
	assert.Equal(t, 4, qs[len(qs)-2])
	assert.Equal(t, 1, qs[len(qs)-1])
	for i := 1; i < len(qs); i++ {
		assert.Less(t, qs[i], qs[i-1])
	}
}

func TestReduceCustomFloorAndStep(t *testing.T) {
	c := newScriptedCodec(func(q int) int { return kb(1000) })
	r := NewQualityReducer(c, 30, 20, quietLogger())

	red, err := r.Reduce(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 80, 60, 40, 30}, c.qualities)
	assert.False(t, red.BudgetMet)
}

func TestNewQualityReducerDefaults(t *testing.T) {
	r := NewQualityReducer(newScriptedCodec(nil), 0, -3, quietLogger())
	assert.Equal(t, DefaultMinQuality, r.minQuality)
	assert.Equal(t, DefaultQualityStep, r.step)
}

func TestReduceRotates(t *testing.T) {
	c := newScriptedCodec(func(q int) int { return kb(1) })
	r := NewQualityReducer(c, DefaultMinQuality, DefaultQualityStep, quietLogger())

	red, err := r.Reduce(context.Background(), image.NewGray(image.Rect(0, 0, 30, 10)), 90, 60)
	require.NoError(t, err)
	assert.Equal(t, []int{90}, c.rotations)
	assert.Equal(t, 10, red.Width)
	assert.Equal(t, 30, red.Height)
}

func TestReduceHonoursCancellation(t *testing.T) {
	c := newScriptedCodec(func(q int) int { return kb(500) })
	r := NewQualityReducer(c, DefaultMinQuality, DefaultQualityStep, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Reduce(ctx, image.NewGray(image.Rect(0, 0, 4, 4)), 0, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int{100}, c.qualities)
}

func TestReduceEncodeFailure(t *testing.T) {
	c := newScriptedCodec(func(q int) int { return 0 })
	c.encodeErr = errors.New("boom")
	r := NewQualityReducer(c, DefaultMinQuality, DefaultQualityStep, quietLogger())

	_, err := r.Reduce(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), 0, 10)
	assert.ErrorIs(t, err, ErrCodecFailure)

	_, err = r.Reduce(context.Background(), nil, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReduceEmptyEncodingIsFailure(t *testing.T) {
	c := newScriptedCodec(func(q int) int { return 0 })
	r := NewQualityReducer(c, DefaultMinQuality, DefaultQualityStep, quietLogger())

	_, err := r.Reduce(context.Background(), image.NewGray(image.Rect(0, 0, 4, 4)), 0, 10)
	assert.ErrorIs(t, err, ErrCodecFailure)
}
