// Package compressor turns a source image into a JPEG that fits the byte
// budget computed by the selected sizing strategy.
package compressor

import (
	"context"
	"errors"

	"photo-shrinker-go/internal/source"
	"photo-shrinker-go/internal/strategy"
)

var (
	// ErrInvalidInput is returned for missing sources and zero-area plans,
	// always before anything is decoded.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCodecFailure wraps probe, decode and encode failures. They are never retried.
	ErrCodecFailure = errors.New("codec failure")
	// ErrBudgetUnreachable reports that the quality floor was hit before the
	// output fit the budget.
	ErrBudgetUnreachable = errors.New("budget unreachable")
)

// Compressor defines the interface for budget-driven image compression.
type Compressor interface {
	// Plan computes the compression plan for src without decoding it.
	// The boolean is false when gear has no strategy.
	Plan(src source.Source, gear strategy.Gear) (strategy.Plan, bool)
	// Compress runs plan, decode and quality reduction for a single source.
	// An unknown gear yields an empty result and a nil error.
	Compress(ctx context.Context, src source.Source, gear strategy.Gear) (*Result, error)
}

// Decision is the decode-time subsample choice for one request.
type Decision struct {
	Factor       int `json:"factor" yaml:"factor"`
	ProbeWidth   int `json:"probe_width" yaml:"probe_width"`
	ProbeHeight  int `json:"probe_height" yaml:"probe_height"`
	TargetWidth  int `json:"target_width" yaml:"target_width"`
	TargetHeight int `json:"target_height" yaml:"target_height"`
}

// Result describes the encoded output of a single compression.
type Result struct {
	Data      []byte
	Plan      strategy.Plan
	Decision  Decision
	Quality   int
	Attempts  int
	Width     int
	Height    int
	BudgetMet bool
}

// Empty reports whether the result carries no image, which is the defined
// outcome for an unknown gear.
func (r *Result) Empty() bool {
	return r == nil || len(r.Data) == 0
}

// SizeKB returns the encoded size in whole kilobytes.
func (r *Result) SizeKB() int64 {
	if r == nil {
		return 0
	}
	return int64(len(r.Data)) / 1024
}

// Err returns ErrBudgetUnreachable for best-effort results and nil otherwise.
func (r *Result) Err() error {
	if r.Empty() || r.BudgetMet {
		return nil
	}
	return ErrBudgetUnreachable
}
