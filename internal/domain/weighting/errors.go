package weighting

import "errors"

// Sentinel errors for weight derivation.
var (
	ErrUnknownMethod      = errors.New("unknown weighting method")
	ErrUnknownMetric      = errors.New("unknown weighting metric")
	ErrInvalidTemperature = errors.New("temperature must be positive")
	ErrMixedGroups        = errors.New("performance records span multiple groups")
)
