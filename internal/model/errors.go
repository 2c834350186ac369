package model

import "errors"

// Error definitions for the model package.
var (
	ErrNotLoaded       = errors.New("model is not loaded")
	ErrInputSize       = errors.New("input size does not match model input shape")
	ErrInvalidMetadata = errors.New("invalid model metadata")
	ErrEmptyOutput     = errors.New("model produced no scores")
	ErrNonFiniteScore  = errors.New("model produced a non-finite score")
	ErrSuperseded      = errors.New("model load superseded by a newer load")
)
