package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/chronicle/core"
	"github.com/poiesic/chronicle/source"
)

// TranscriptExt is appended to a document key to name its transcript file.
const TranscriptExt = ".txt"

// Catalog lists a corpus from the *.json records in a directory.
type Catalog struct {
	dir        string
	sourceName string
	logger     *slog.Logger
}

var _ source.Catalog = (*Catalog)(nil)

// NewCatalog creates a catalog reading records from dir.
func NewCatalog(dir, sourceName string, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		dir:        dir,
		sourceName: sourceName,
		logger:     logger.With("component", "catalog", "backend", "filesystem"),
	}
}

// List reads every record in the directory. Unreadable or invalid records
// are logged and skipped.
func (c *Catalog) List(ctx context.Context) ([]core.SourceDocument, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog directory: %w", mapError(err))
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	docs := make([]core.SourceDocument, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(c.dir, name))
		if err != nil {
			c.logger.Warn("skipping unreadable record", "file", name, "err", err)
			continue
		}
		doc, err := source.Decode(c.sourceName, name, data)
		if err != nil {
			c.logger.Warn("skipping invalid record", "file", name, "err", err)
			continue
		}
		docs = append(docs, doc)
	}

	source.SortDocuments(docs)
	c.logger.Info("catalog loaded", "documents", len(docs), "files", len(names))
	return docs, nil
}

// Fetcher reads transcripts named <key>.txt from a directory.
type Fetcher struct {
	dir string
}

var _ source.Fetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher reading from dir.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{dir: dir}
}

// Fetch returns the raw text stored for documentKey.
func (f *Fetcher) Fetch(ctx context.Context, documentKey string) (string, error) {
	if documentKey == "" || documentKey != filepath.Base(documentKey) || documentKey == ".." {
		return "", fmt.Errorf("%w: %q", source.ErrInvalidKey, documentKey)
	}
	data, err := os.ReadFile(filepath.Join(f.dir, documentKey+TranscriptExt))
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", documentKey, mapError(err))
	}
	return string(data), nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %w", source.ErrNotFound, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %w", source.ErrAccessDenied, err)
	default:
		return err
	}
}
