package retry

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when MaxAttempts is <= 0
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidDelay is returned when BaseDelay is <= 0
	ErrInvalidDelay = errors.New("base delay must be greater than 0")
)
