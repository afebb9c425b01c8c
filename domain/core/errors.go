package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Configuration errors, detectable before any data is touched
	ErrConfigInvalid = errors.New("invalid analysis configuration")

	// Data sufficiency errors
	ErrInsufficientData   = errors.New("insufficient data for analysis")
	ErrDonorPoolTooSmall  = fmt.Errorf("%w: donor pool too small", ErrInsufficientData)
	ErrTreatedUnitSparse  = fmt.Errorf("%w: treated unit fails outcome coverage", ErrInsufficientData)
	ErrEmptyPredictorSpec = fmt.Errorf("%w: predictor spec is empty", ErrConfigInvalid)

	// Fit errors
	ErrFitFailure          = errors.New("synthetic weight fit failed")
	ErrNoDonorsLeft        = fmt.Errorf("%w: no donors remain after predictor-completeness exclusion", ErrFitFailure)
	ErrNoPostPeriodOverlap = fmt.Errorf("%w: no observed post-period outcomes", ErrFitFailure)

	// Inference errors
	ErrNoPlacebos = errors.New("no usable placebo fits")

	// Panel errors
	ErrUnitNotFound    = errors.New("unit not found in panel")
	ErrDuplicateYear   = errors.New("duplicate year for unit")
	ErrUnknownVariable = errors.New("unknown variable")
)

// Error constructors with context

func NewConfigError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrConfigInvalid, field, reason)
}

func NewInsufficientDataError(detail string) error {
	return fmt.Errorf("%w: %s", ErrInsufficientData, detail)
}

func NewFitError(treated UnitID, cause error) error {
	return fmt.Errorf("%w for treated unit %s: %v", ErrFitFailure, treated, cause)
}

// Error checking helpers

func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfigInvalid)
}

func IsInsufficientDataError(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

func IsFitFailure(err error) bool {
	return errors.Is(err, ErrFitFailure)
}
