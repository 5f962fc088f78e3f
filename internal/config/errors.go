package config

import "errors"

// Sentinel error kinds for this package. Callers match them with errors.Is.
var (
	// ErrInvalidConfig wraps every Validate failure.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig wraps .env, YAML and env provider failures.
	ErrLoadConfig = errors.New("load config failed")
)
