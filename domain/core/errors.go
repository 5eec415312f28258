package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// ErrDataValidation covers caller-fixable input problems: empty series,
	// non-tabular input, a column required by a model formula that the
	// provider never supplied. Always raised before any numerical work.
	ErrDataValidation = errors.New("data validation failed")

	// ErrFitFailure is a numerical failure for a single model candidate
	// (non-convergence, singular design). Recoverable: the candidate is
	// excluded from the comparison.
	ErrFitFailure = errors.New("model fit failed")

	// ErrAllCandidatesFailed means no candidate in the registry produced a
	// usable fit for a training window. Fatal for that window.
	ErrAllCandidatesFailed = errors.New("all model candidates failed")

	// ErrInsufficientData means the series is too short to hold out the
	// requested window and still leave a training set.
	ErrInsufficientData = errors.New("insufficient data for analysis")
)

// Error constructors with context
func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrDataValidation, field, reason)
}

func NewMissingColumnError(model string, column string) error {
	return fmt.Errorf("%w: model %s requires column %q", ErrDataValidation, model, column)
}

func NewFitError(model string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrFitFailure, model, reason)
}

func NewInsufficientDataError(n, needed int) error {
	return fmt.Errorf("%w: series has %d rows, need at least %d", ErrInsufficientData, n, needed)
}

// Error checking helpers
func IsDataValidation(err error) bool {
	return errors.Is(err, ErrDataValidation)
}

func IsFitFailure(err error) bool {
	return errors.Is(err, ErrFitFailure)
}

func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}
