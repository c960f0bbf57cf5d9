package timesync

import "errors"

// Validation errors
var (
	ErrLowConfidence     = errors.New("sync point confidence below minimum")
	ErrInvalidAdjustment = errors.New("invalid offset adjustment")
)
