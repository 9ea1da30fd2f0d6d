package core

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Payload field names as written to the vector store.
const (
	FieldSourceType        = "source_type"
	FieldSourceName        = "source_name"
	FieldSequenceKey       = "sequence_key"
	FieldSeason            = "season"
	FieldEpisodeNumber     = "episode_number"
	FieldTitle             = "title"
	FieldPeriod            = "period"
	FieldCategory          = "category"
	FieldPublishedAt       = "published_at"
	FieldProcessedAt       = "processed_at"
	FieldEmbeddingModel    = "embedding_model"
	FieldProcessingVersion = "processing_version"
	FieldDocumentKey       = "document_key"
	FieldDocumentURL       = "document_url"
	FieldAuthor            = "author"
	FieldChunkIndex        = "chunk_index"
	FieldTotalChunks       = "total_chunks"
	FieldContentLength     = "content_length"
	FieldContentHash       = "content_hash"
	FieldContent           = "content"
	FieldEmbeddingMissing  = "embedding_missing"
)

// IndexedFields lists the payload fields the store should index for filtered scans.
var IndexedFields = []string{FieldSourceName, FieldSequenceKey, FieldEpisodeNumber}

// Payload flattens the point's segment into the store's payload schema.
// Kind-specific fields are only present for the matching kind.
func (p *Point) Payload() map[string]any {
	s := &p.Segment
	m := s.Metadata
	payload := map[string]any{
		FieldSourceType:        string(m.Kind),
		FieldSourceName:        m.SourceName,
		FieldSequenceKey:       m.SequenceKey,
		FieldTitle:             m.Title,
		FieldPeriod:            m.Period,
		FieldCategory:          m.Category,
		FieldPublishedAt:       m.PublishedAt,
		FieldProcessedAt:       m.ProcessedAt.UTC().Format(time.RFC3339),
		FieldEmbeddingModel:    m.EmbeddingModel,
		FieldProcessingVersion: m.ProcessingVersion,
		FieldDocumentKey:       m.DocumentKey,
		FieldDocumentURL:       m.DocumentURL,
		FieldChunkIndex:        s.Position,
		FieldTotalChunks:       s.SegmentCount,
		FieldContentLength:     s.ContentLength,
		FieldContentHash:       s.ContentHash,
		FieldContent:           s.Content,
	}
	if m.Podcast != nil {
		payload[FieldSeason] = m.Podcast.Season
		payload[FieldEpisodeNumber] = m.Podcast.EpisodeNumber
	}
	if m.Document != nil {
		payload[FieldAuthor] = m.Document.Author
	}
	if p.EmbeddingMissing {
		payload[FieldEmbeddingMissing] = true
	}
	return payload
}

// PointFromPayload rebuilds a point (without its vector) from a stored payload.
// Numbers may arrive as float64 or json.Number depending on the decoder.
func PointFromPayload(id string, payload map[string]any) (Point, error) {
	var err error
	str := func(key string) string {
		if v, ok := payload[key].(string); ok {
			return v
		}
		return ""
	}
	// Older writers stored episode numbers as JSON numbers.
	label := func(key string) string {
		switch v := payload[key].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int, int64, json.Number:
			return fmt.Sprint(v)
		}
		return ""
	}
	num := func(key string) int {
		if err != nil {
			return 0
		}
		v, ok := payload[key]
		if !ok || v == nil {
			return 0
		}
		var n int
		n, err = toInt(v)
		if err != nil {
			err = fmt.Errorf("%w: field %s: %w", ErrInvalidPayload, key, err)
		}
		return n
	}

	m := Metadata{
		Kind:              SourceKind(str(FieldSourceType)),
		SourceName:        str(FieldSourceName),
		SequenceKey:       str(FieldSequenceKey),
		Title:             str(FieldTitle),
		Period:            str(FieldPeriod),
		Category:          str(FieldCategory),
		PublishedAt:       str(FieldPublishedAt),
		EmbeddingModel:    str(FieldEmbeddingModel),
		ProcessingVersion: str(FieldProcessingVersion),
		DocumentKey:       str(FieldDocumentKey),
		DocumentURL:       str(FieldDocumentURL),
	}
	if ts := str(FieldProcessedAt); ts != "" {
		if parsed, perr := time.Parse(time.RFC3339, ts); perr == nil {
			m.ProcessedAt = parsed
		}
	}
	switch m.Kind {
	case SourceKindPodcast:
		m.Podcast = &PodcastFields{Season: num(FieldSeason), EpisodeNumber: label(FieldEpisodeNumber)}
	case SourceKindDocument:
		m.Document = &DocumentFields{Author: str(FieldAuthor)}
	}
	if m.SequenceKey == "" {
		m.SequenceKey = legacySequenceKey(num(FieldSeason), strings.TrimSpace(label(FieldEpisodeNumber)))
	}

	seg := Segment{
		ID:            id,
		Content:       str(FieldContent),
		Position:      num(FieldChunkIndex),
		SegmentCount:  num(FieldTotalChunks),
		ContentLength: num(FieldContentLength),
		ContentHash:   str(FieldContentHash),
		Metadata:      m,
	}
	if err != nil {
		return Point{}, err
	}
	missing, _ := payload[FieldEmbeddingMissing].(bool)
	return Point{ID: id, Segment: seg, EmbeddingMissing: missing}, nil
}

// legacySequenceKey derives the sequence key of points written before the
// sequence_key field existed, the same way catalog records do. It returns ""
// when the payload carries no episode number.
func legacySequenceKey(season int, episode string) string {
	switch {
	case episode == "":
		return ""
	case season > 0:
		return strconv.Itoa(season) + "." + episode
	default:
		return episode
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case string:
		return strconv.Atoi(n)
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
}
