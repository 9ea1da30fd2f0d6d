package storage

import (
	"context"

	"github.com/poiesic/chronicle/core"
)

// Filter narrows store operations to one corpus and optionally one source.
// Empty fields match everything.
type Filter struct {
	SourceName  string
	SequenceKey string
}

// Matches reports whether the point's payload satisfies the filter.
func (f Filter) Matches(p *core.Point) bool {
	m := &p.Segment.Metadata
	if f.SourceName != "" && m.SourceName != f.SourceName {
		return false
	}
	if f.SequenceKey != "" && m.SequenceKey != f.SequenceKey {
		return false
	}
	return true
}

// ScrollRequest asks for one page of points. Cursor is the Next value of the
// previous page, or empty for the first page.
type ScrollRequest struct {
	Filter Filter
	Cursor string
	Limit  int
}

// ScrollPage is one page of points. Next is empty when the scan is complete.
// Points are returned with their payload but without vectors.
type ScrollPage struct {
	Points []core.Point
	Next   string
}

// PointStore is the vector store holding segment points.
// Implementations must be thread-safe and support concurrent access.
type PointStore interface {
	// EnsureCollection creates the collection if it does not exist.
	EnsureCollection(ctx context.Context, dimensions int) error

	// CreateIndex creates a keyword payload index on field.
	// Returns ErrIndexExists if the index is already present.
	CreateIndex(ctx context.Context, field string) error

	// Upsert writes points, replacing any existing point with the same id.
	Upsert(ctx context.Context, points []core.Point) error

	// Scroll returns one page of points matching the request's filter, in a
	// stable scan order.
	Scroll(ctx context.Context, req ScrollRequest) (*ScrollPage, error)

	// Delete removes points by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// Count returns the exact number of points matching filter.
	Count(ctx context.Context, filter Filter) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// RunRepository persists ingestion run summaries.
type RunRepository interface {
	// SaveRun stores a run record, replacing one with the same id.
	SaveRun(ctx context.Context, run *core.RunRecord) error

	// LastRun returns the most recent run for a corpus.
	// Returns nil, nil if no run has been recorded.
	LastRun(ctx context.Context, sourceName string) (*core.RunRecord, error)

	// ListRuns returns up to limit runs for a corpus, most recent first.
	ListRuns(ctx context.Context, sourceName string, limit int) ([]*core.RunRecord, error)
}
