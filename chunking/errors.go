package chunking

import "errors"

var (
	// ErrNoContent is returned when the text is empty after trimming.
	ErrNoContent = errors.New("no content to split")

	// ErrTooManySegments is returned when splitting would exceed the segment cap.
	ErrTooManySegments = errors.New("segment limit exceeded")

	// ErrInvalidSize is returned for a non-positive window size.
	ErrInvalidSize = errors.New("invalid chunk size")

	// ErrInvalidOverlap is returned for a negative overlap or one not smaller than size.
	ErrInvalidOverlap = errors.New("invalid chunk overlap")

	// ErrInvalidMaxSegments is returned for a non-positive segment cap.
	ErrInvalidMaxSegments = errors.New("invalid max segments")
)
