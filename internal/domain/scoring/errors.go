package scoring

import "errors"

// Sentinel errors for scoring.
var (
	ErrOutOfRange     = errors.New("value out of range")
	ErrUnknownOutcome = errors.New("unknown outcome")
	ErrLengthMismatch = errors.New("length mismatch")
	ErrEmptyInput     = errors.New("empty input")
)
