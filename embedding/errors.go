package embedding

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbedderRequired is returned when no embedder is provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidBatchSize is returned for a non-positive batch size.
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")

	// ErrInvalidPolicy is returned for an unknown or unusable failure policy.
	ErrInvalidPolicy = errors.New("invalid embedding failure policy")

	// ErrCountMismatch is returned when the service returns the wrong number of vectors.
	ErrCountMismatch = errors.New("embedding count mismatch")
)

// EmbeddingServiceError reports a batch the embedding service could not serve.
type EmbeddingServiceError struct {
	Batch  int
	Offset int
	Size   int
	Err    error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("embedding batch %d (texts %d-%d) failed: %v", e.Batch, e.Offset, e.Offset+e.Size-1, e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error {
	return e.Err
}
