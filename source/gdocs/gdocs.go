package gdocs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/poiesic/chronicle/source"
	"golang.org/x/time/rate"
	"google.golang.org/api/docs/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultDelay spaces consecutive document requests.
const DefaultDelay = 100 * time.Millisecond

// Fetcher reads document text through the Google Docs API.
type Fetcher struct {
	service *docs.Service
	limiter *rate.Limiter
}

var _ source.Fetcher = (*Fetcher)(nil)

// Config selects credentials and request pacing.
type Config struct {
	// CredentialsFile is a service account or authorized user JSON file.
	// Empty uses application default credentials.
	CredentialsFile string
	// Delay is the minimum spacing between requests. Zero uses DefaultDelay;
	// a negative value disables pacing.
	Delay time.Duration
}

// New creates a Fetcher with read-only document scope. Extra client options
// are appended after the credential options.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (*Fetcher, error) {
	clientOpts := []option.ClientOption{option.WithScopes(docs.DocumentsReadonlyScope)}
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	srv, err := docs.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create docs service: %w", err)
	}
	return NewWithService(srv, cfg.Delay), nil
}

// NewWithService wraps an existing Docs service.
func NewWithService(srv *docs.Service, delay time.Duration) *Fetcher {
	if delay == 0 {
		delay = DefaultDelay
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &Fetcher{service: srv, limiter: rate.NewLimiter(limit, 1)}
}

// Fetch returns the plain text of the document with id documentKey.
func (f *Fetcher) Fetch(ctx context.Context, documentKey string) (string, error) {
	if documentKey == "" {
		return "", fmt.Errorf("%w: empty document id", source.ErrInvalidKey)
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	doc, err := f.service.Documents.Get(documentKey).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", documentKey, mapError(err))
	}

	var b strings.Builder
	if doc.Body != nil {
		writeElements(&b, doc.Body.Content)
	}
	return strings.TrimSpace(b.String()), nil
}

// writeElements appends the text runs of paragraphs, including those nested
// in tables and tables of contents.
func writeElements(b *strings.Builder, elements []*docs.StructuralElement) {
	for _, el := range elements {
		switch {
		case el.Paragraph != nil:
			for _, pe := range el.Paragraph.Elements {
				if pe.TextRun != nil {
					b.WriteString(pe.TextRun.Content)
				}
			}
		case el.Table != nil:
			for _, row := range el.Table.TableRows {
				for _, cell := range row.TableCells {
					writeElements(b, cell.Content)
				}
			}
		case el.TableOfContents != nil:
			writeElements(b, el.TableOfContents.Content)
		}
	}
}

func mapError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %w", source.ErrNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %w", source.ErrAccessDenied, err)
		}
	}
	return err
}
