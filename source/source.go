package source

import (
	"context"
	"strings"

	"github.com/poiesic/chronicle/core"
)

// Catalog lists the documents that make up a corpus.
type Catalog interface {
	List(ctx context.Context) ([]core.SourceDocument, error)
}

// Fetcher retrieves the full raw text of one document by its key.
// Errors wrap ErrNotFound or ErrAccessDenied when the document cannot be read.
type Fetcher interface {
	Fetch(ctx context.Context, documentKey string) (string, error)
}

const headerDelimiter = "---"

// ExtractTranscript removes the metadata header from a raw document. The
// header is the part before the second "---"; text without two delimiters is
// returned whole. The result is trimmed.
func ExtractTranscript(raw string) string {
	parts := strings.Split(raw, headerDelimiter)
	if len(parts) >= 3 {
		return strings.TrimSpace(strings.Join(parts[2:], headerDelimiter))
	}
	return strings.TrimSpace(raw)
}
