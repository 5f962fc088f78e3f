package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	ErrInvalidEvent    = errors.New("invalid event")
	ErrUnknownEvent    = errors.New("unknown event")
)
