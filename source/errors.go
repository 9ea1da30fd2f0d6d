package source

import "errors"

var (
	// ErrNotFound indicates the document does not exist in the source.
	ErrNotFound = errors.New("document not found")

	// ErrAccessDenied indicates the credentials cannot read the document.
	ErrAccessDenied = errors.New("document access denied")

	// ErrInvalidRecord indicates a catalog record that is not usable.
	ErrInvalidRecord = errors.New("invalid catalog record")

	// ErrInvalidKey indicates a document key that cannot be resolved safely.
	ErrInvalidKey = errors.New("invalid document key")
)

// Permanent lists the errors a fetch should not be retried on.
var Permanent = []error{ErrNotFound, ErrAccessDenied, ErrInvalidKey}
