package core

import (
	"time"
)

// SourceKind identifies what kind of long-form source a document is.
type SourceKind string

const (
	// SourceKindPodcast is an episode transcript belonging to a podcast corpus.
	SourceKindPodcast SourceKind = "podcast"
	// SourceKindDocument is a standalone document (article, lecture notes, etc).
	SourceKindDocument SourceKind = "document"
)

// PodcastFields holds the fields that only apply to podcast transcripts.
type PodcastFields struct {
	Season        int    // 0 when the corpus has no seasons
	EpisodeNumber string // As published, e.g. "12" or "003a"
}

// DocumentFields holds the fields that only apply to standalone documents.
type DocumentFields struct {
	Author string
}

// SourceDocument describes one unit of long-form text before it is fetched.
// Exactly one of Podcast or Document is set, matching Kind.
type SourceDocument struct {
	DocumentKey string // Stable external key (Google Doc id, object key, file name)
	DocumentURL string
	SourceName  string // Corpus the document belongs to
	SequenceKey string // Ordinal within the corpus, e.g. "3.12"
	Title       string
	PublishedAt string // Original publication date as provided by the catalog
	Kind        SourceKind
	Podcast     *PodcastFields
	Document    *DocumentFields
}

// Metadata is the segment-independent bundle attached to every segment of a source.
//
// Applicable fields by kind:
//   - podcast: Podcast is set, Document is nil
//   - document: Document is set, Podcast is nil
type Metadata struct {
	Kind              SourceKind
	SourceName        string
	SequenceKey       string
	Title             string
	Period            string // Derived from the corpus classification table
	Category          string // Derived from the corpus classification table
	PublishedAt       string
	ProcessedAt       time.Time
	EmbeddingModel    string
	ProcessingVersion string
	DocumentKey       string
	DocumentURL       string
	Podcast           *PodcastFields
	Document          *DocumentFields
}

// Segment is one chunk of a source's text together with its position and metadata.
type Segment struct {
	ID            string
	Content       string
	Position      int // Zero-based, contiguous within a source
	SegmentCount  int // Total segments produced from the same source
	ContentLength int // In characters (runes)
	ContentHash   string
	Start         int // Rune offset of the window start in the extracted text
	End           int // Rune offset of the window end in the extracted text
	Metadata      Metadata
}

// Point is what the vector store persists: identifier, vector and the segment payload.
type Point struct {
	ID               string
	Vector           []float32
	Segment          Segment
	EmbeddingMissing bool // Set when the vector is a zero-filled placeholder
}

// SourceFailure records why a single source did not make it into the store.
type SourceFailure struct {
	SequenceKey string
	DocumentKey string
	Stage       string
	Reason      string
}

// RunRecord is the persisted summary of one ingestion run.
type RunRecord struct {
	ID         string
	SourceName string
	StartedAt  time.Time
	FinishedAt time.Time
	Force      bool
	Attempted  int
	Succeeded  int
	Skipped    int
	Failed     int
	Segments   int
	Failures   []SourceFailure
}

// FailedSequenceKeys returns the sequence keys of every failed source in the run.
func (r *RunRecord) FailedSequenceKeys() []string {
	keys := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		keys = append(keys, f.SequenceKey)
	}
	return keys
}
