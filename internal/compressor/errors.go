package compressor

import (
	"context"
	"errors"
)

func isClassified(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrCodecFailure) ||
		errors.Is(err, ErrBudgetUnreachable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Kind names the error class of err for logs and API responses.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrCodecFailure):
		return "codec_failure"
	case errors.Is(err, ErrBudgetUnreachable):
		return "budget_unreachable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "unknown"
	}
}
