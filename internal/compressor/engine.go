package compressor

import (
	"context"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"photo-shrinker-go/internal/codec"
	"photo-shrinker-go/internal/source"
	"photo-shrinker-go/internal/strategy"
)

// Options configures an Engine.
type Options struct {
	MinQuality  int
	QualityStep int
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{
		MinQuality:  DefaultMinQuality,
		QualityStep: DefaultQualityStep,
	}
}

// Engine is the default implementation of the Compressor interface. It holds
// no per-request state and is safe for concurrent use.
type Engine struct {
	codec   codec.Codec
	reducer *QualityReducer
	log     logrus.FieldLogger
}

var _ Compressor = (*Engine)(nil)

// NewEngine creates a new Engine.
func NewEngine(c codec.Codec, opts Options, log logrus.FieldLogger) *Engine {
	return &Engine{
		codec:   c,
		reducer: NewQualityReducer(c, opts.MinQuality, opts.QualityStep, log),
		log:     log,
	}
}

// Plan implements Compressor.
func (e *Engine) Plan(src source.Source, gear strategy.Gear) (strategy.Plan, bool) {
	if src == nil || !gear.Known() {
		return strategy.Plan{}, false
	}
	return strategy.For(src.Width(), src.Height(), src.Size(), src.Angle(), gear)
}

// Compress implements Compressor.
func (e *Engine) Compress(ctx context.Context, src source.Source, gear strategy.Gear) (*Result, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrInvalidInput)
	}

	plan, ok := e.Plan(src, gear)
	if !ok {
		e.log.WithField("gear", gear).Debug("No strategy for gear, nothing to do")
		return &Result{}, nil
	}
	if !plan.Valid() {
		return nil, fmt.Errorf("%w: %s source %dx%d produced a %dx%d plan",
			ErrInvalidInput, gear, src.Width(), src.Height(), plan.Width, plan.Height)
	}

	log := e.log.WithFields(logrus.Fields{
		"gear":      gear.String(),
		"target":    fmt.Sprintf("%dx%d", plan.Width, plan.Height),
		"budget_kb": plan.BudgetKB,
		"angle":     plan.Angle,
	})
	log.Debug("Planned compression")

	var probeW, probeH int
	err := guard("probe", func() (err error) {
		probeW, probeH, err = src.Probe()
		return err
	})
	if err != nil {
		return nil, err
	}

	decision, err := PlanDownsample(probeW, probeH, plan.Width, plan.Height)
	if err != nil {
		return nil, err
	}
	log.WithField("factor", decision.Factor).Debug("Planned downsample")

	var img image.Image
	err = guard("decode", func() (err error) {
		img, err = src.Decode(decision.Factor)
		if err == nil && img == nil {
			err = fmt.Errorf("decoder returned no raster")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	img = e.codec.Fit(img, plan.Width, plan.Height)

	var reduced *Reduction
	err = guard("encode", func() (err error) {
		reduced, err = e.reducer.Reduce(ctx, img, plan.Angle, plan.BudgetKB)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"quality":    reduced.Quality,
		"attempts":   reduced.Attempts,
		"size_kb":    len(reduced.Data) / 1024,
		"budget_met": reduced.BudgetMet,
	}).Debug("Compressed")

	return &Result{
		Data:      reduced.Data,
		Plan:      plan,
		Decision:  decision,
		Quality:   reduced.Quality,
		Attempts:  reduced.Attempts,
		Width:     reduced.Width,
		Height:    reduced.Height,
		BudgetMet: reduced.BudgetMet,
	}, nil
}

// guard runs a codec call, converting errors and panics into ErrCodecFailure.
// Errors that already carry a taxonomy sentinel or a context error pass through.
func guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrCodecFailure, op, r)
		}
	}()

	err = fn()
	switch {
	case err == nil:
		return nil
	case isClassified(err):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", ErrCodecFailure, op, err)
	}
}
