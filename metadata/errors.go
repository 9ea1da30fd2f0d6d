package metadata

import "errors"

var (
	// ErrInvalidProfile is returned when a classification profile is malformed.
	ErrInvalidProfile = errors.New("invalid classification profile")
)
