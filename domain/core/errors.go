package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Dataset errors
	ErrDataUnavailable = errors.New("dataset not loaded")
	ErrNoData          = errors.New("no observations match the request")

	// Classification errors
	ErrInvalidBreakpoints = errors.New("invalid size class breakpoints")

	// Model errors
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrModelFit         = errors.New("model fitting failed")

	// Population model errors
	ErrInvalidMatrix       = errors.New("invalid projection matrix")
	ErrUnreachableTarget   = errors.New("target growth rate unreachable")
	ErrInvalidPerturbation = errors.New("invalid matrix perturbation")
)

// NewInsufficientDataError reports how many rows were available against the floor
func NewInsufficientDataError(got, need int) error {
	return fmt.Errorf("%w: %d valid rows, need at least %d", ErrInsufficientData, got, need)
}

// NewBreakpointsError describes why a breakpoint sequence was rejected
func NewBreakpointsError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidBreakpoints, reason)
}

// NewModelFitError wraps a numerical failure inside a model fit
func NewModelFitError(reason string) error {
	return fmt.Errorf("%w: %s", ErrModelFit, reason)
}

// NewInvalidMatrixError describes why a projection matrix was rejected
func NewInvalidMatrixError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidMatrix, reason)
}
