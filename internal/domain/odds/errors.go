package odds

import "errors"

// Sentinel errors for odds conversion.
var (
	ErrInvalidOdds             = errors.New("invalid odds")
	ErrInvalidProbabilityTotal = errors.New("invalid probability total")
	ErrUnknownFormat           = errors.New("unknown odds format")
)
