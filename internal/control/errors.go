package control

import "errors"

// Validation errors for control source configuration
var (
	ErrEmptyParameter      = errors.New("parameter name is empty")
	ErrInvalidSource       = errors.New("invalid control source")
	ErrInvalidWeight       = errors.New("blend weights must be finite and non-negative")
	ErrMissingMapping      = errors.New("missing mapping for control source")
	ErrInvalidMIDIMapping  = errors.New("invalid midi mapping")
	ErrInvalidAudioMapping = errors.New("invalid audio mapping")
	ErrUnknownFeature      = errors.New("unknown audio feature")
	ErrInvalidSmoothing    = errors.New("smoothing must be finite and non-negative")
	ErrInvalidScaling      = errors.New("scaling must be finite")
	ErrInvalidRange        = errors.New("range bounds must be finite")
	ErrParameterNotFound   = errors.New("parameter has no control source")
)
