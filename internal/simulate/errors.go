package simulate

import "errors"

var (
	// ErrInvalidConfig is returned for unusable run settings.
	ErrInvalidConfig = errors.New("invalid simulation config")
	// ErrUnhealthy is returned when the service health check fails.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrUnexpectedStatus is returned for responses outside the expected codes.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrMismatch is returned when served consensus disagrees with the quotes.
	ErrMismatch = errors.New("consensus mismatch")
)
