package compressor

import (
	"context"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"photo-shrinker-go/internal/codec"
)

const (
	// DefaultQualityStep is how much JPEG quality drops per attempt.
	DefaultQualityStep = 6
	// DefaultMinQuality is the lowest quality the reducer will try.
	DefaultMinQuality = codec.MinQuality
)

// Reduction is the outcome of the quality loop.
type Reduction struct {
	Data      []byte
	Quality   int
	Attempts  int
	Width     int
	Height    int
	BudgetMet bool
}

// QualityReducer re-encodes a raster at decreasing quality until it fits.
type QualityReducer struct {
	codec      codec.Codec
	minQuality int
	step       int
	log        logrus.FieldLogger
}

// NewQualityReducer returns a reducer. Out of range settings fall back to
// the defaults.
func NewQualityReducer(c codec.Codec, minQuality, step int, log logrus.FieldLogger) *QualityReducer {
	if minQuality < codec.MinQuality || minQuality > codec.MaxQuality {
		minQuality = DefaultMinQuality
	}
	if step <= 0 {
		step = DefaultQualityStep
	}
	return &QualityReducer{codec: c, minQuality: minQuality, step: step, log: log}
}

// Reduce rotates img clockwise by angle and encodes it at quality 100, then
// at 100-step, 100-2*step and so on until the output is within budgetKB.
// The last attempt is made exactly at the quality floor. If even that does
// not fit, the smallest encoding is returned with BudgetMet false.
//
// ctx is checked before every re-encode.
func (r *QualityReducer) Reduce(ctx context.Context, img image.Image, angle int, budgetKB int64) (*Reduction, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil raster", ErrInvalidInput)
	}

	if codec.NormalizeAngle(angle) != 0 {
		img = r.codec.Rotate(img, angle)
	}

	quality := codec.MaxQuality
	data, err := r.encode(img, quality)
	if err != nil {
		return nil, err
	}
	attempts := 1
	best, bestQuality := data, quality

	for !withinBudget(data, budgetKB) {
		if quality <= r.minQuality {
			r.log.WithFields(logrus.Fields{
				"budget_kb": budgetKB,
				"size_kb":   len(best) / 1024,
				"quality":   bestQuality,
			}).Warn("Quality floor reached before budget")
			return r.reduction(img, best, bestQuality, attempts, false), nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		quality = max(quality-r.step, r.minQuality)
		data, err = r.encode(img, quality)
		if err != nil {
			return nil, err
		}
		attempts++
		if len(data) <= len(best) {
			best, bestQuality = data, quality
		}

		r.log.WithFields(logrus.Fields{
			"quality": quality,
			"size_kb": len(data) / 1024,
		}).Debug("Re-encoded")
	}

	return r.reduction(img, data, quality, attempts, true), nil
}

func (r *QualityReducer) encode(img image.Image, quality int) ([]byte, error) {
	data, err := r.codec.Encode(img, quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodecFailure, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: encoder returned no data at quality %d", ErrCodecFailure, quality)
	}
	return data, nil
}

func (r *QualityReducer) reduction(img image.Image, data []byte, quality, attempts int, met bool) *Reduction {
	b := img.Bounds()
	return &Reduction{
		Data:      data,
		Quality:   quality,
		Attempts:  attempts,
		Width:     b.Dx(),
		Height:    b.Dy(),
		BudgetMet: met,
	}
}

func withinBudget(data []byte, budgetKB int64) bool {
	return int64(len(data))/1024 <= budgetKB
}
