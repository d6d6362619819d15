package smc

import "errors"

var (
	// ErrInvalidConfig is returned when a filter or model is constructed or
	// called with invalid dimensions or parameters.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrDegenerateWeights is returned when every particle likelihood
	// collapses to zero and the weights fall back to uniform.
	ErrDegenerateWeights = errors.New("degenerate weights")
	// ErrInvalidDistribution is returned when weights handed to the resampler
	// are negative or do not sum to 1. It indicates an upstream defect and is
	// never recovered by renormalizing.
	ErrInvalidDistribution = errors.New("invalid distribution")
)
