package source

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/poiesic/chronicle/core"
	"github.com/tidwall/gjson"
)

// Record is one catalog entry as stored in the JSON metadata files.
//
// Older corpora name the key and URL google_doc_id and google_doc_url; both
// spellings are accepted. Season and episode_number may be numbers or strings.
type Record struct {
	DocumentKey   string
	DocumentURL   string
	Title         string
	Season        int
	EpisodeNumber string
	SequenceKey   string
	Published     string
	Kind          core.SourceKind
	Author        string
}

// ParseRecord decodes a JSON catalog record.
func ParseRecord(data []byte) (Record, error) {
	if !gjson.ValidBytes(data) {
		return Record{}, fmt.Errorf("%w: malformed JSON", ErrInvalidRecord)
	}
	get := func(paths ...string) gjson.Result {
		for _, p := range paths {
			if r := gjson.GetBytes(data, p); r.Exists() && r.String() != "" {
				return r
			}
		}
		return gjson.Result{}
	}

	r := Record{
		DocumentKey:   strings.TrimSpace(get("document_key", "google_doc_id").String()),
		DocumentURL:   get("document_url", "google_doc_url").String(),
		Title:         get("title").String(),
		Season:        int(get("season").Int()),
		EpisodeNumber: strings.TrimSpace(get("episode_number").String()),
		SequenceKey:   strings.TrimSpace(get("sequence_key").String()),
		Published:     get("published", "published_at").String(),
		Kind:          core.SourceKind(strings.ToLower(get("kind", "source_type").String())),
		Author:        get("author").String(),
	}
	if r.Kind == "" {
		r.Kind = core.SourceKindPodcast
	}

	if r.DocumentKey == "" {
		return Record{}, fmt.Errorf("%w: missing document key", ErrInvalidRecord)
	}
	if r.EpisodeNumber == "" && r.SequenceKey == "" {
		return Record{}, fmt.Errorf("%w: missing episode number", ErrInvalidRecord)
	}
	return r, nil
}

// Sequence returns the record's ordinal key within its corpus: an explicit
// sequence_key, else "<season>.<episode>" when the corpus has seasons, else
// the episode number.
func (r Record) Sequence() string {
	switch {
	case r.SequenceKey != "":
		return r.SequenceKey
	case r.Season > 0:
		return strconv.Itoa(r.Season) + "." + r.EpisodeNumber
	default:
		return r.EpisodeNumber
	}
}

// Document converts the record into a SourceDocument belonging to sourceName.
func (r Record) Document(sourceName string) (core.SourceDocument, error) {
	doc := core.SourceDocument{
		DocumentKey: r.DocumentKey,
		DocumentURL: r.DocumentURL,
		SourceName:  sourceName,
		SequenceKey: r.Sequence(),
		Title:       r.Title,
		PublishedAt: r.Published,
		Kind:        r.Kind,
	}
	switch r.Kind {
	case core.SourceKindPodcast:
		doc.Podcast = &core.PodcastFields{Season: r.Season, EpisodeNumber: r.EpisodeNumber}
	case core.SourceKindDocument:
		doc.Document = &core.DocumentFields{Author: r.Author}
	}
	if err := core.ValidateDocument(&doc); err != nil {
		return core.SourceDocument{}, err
	}
	return doc, nil
}

// Decode parses one catalog file into a document of sourceName. name
// identifies the file in errors.
func Decode(sourceName, name string, data []byte) (core.SourceDocument, error) {
	r, err := ParseRecord(data)
	if err != nil {
		return core.SourceDocument{}, fmt.Errorf("%s: %w", name, err)
	}
	doc, err := r.Document(sourceName)
	if err != nil {
		return core.SourceDocument{}, fmt.Errorf("%s: %w", name, err)
	}
	return doc, nil
}

var leadingDigits = regexp.MustCompile(`^\s*(\d+)`)

func episodeOrdinal(doc *core.SourceDocument) int {
	key := doc.SequenceKey
	if doc.Podcast != nil && doc.Podcast.EpisodeNumber != "" {
		key = doc.Podcast.EpisodeNumber
	}
	if m := leadingDigits.FindStringSubmatch(key); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}

// SortDocuments orders documents by season, episode ordinal and sequence key.
func SortDocuments(docs []core.SourceDocument) {
	slices.SortStableFunc(docs, func(a, b core.SourceDocument) int {
		var sa, sb int
		if a.Podcast != nil {
			sa = a.Podcast.Season
		}
		if b.Podcast != nil {
			sb = b.Podcast.Season
		}
		return cmp.Or(
			cmp.Compare(sa, sb),
			cmp.Compare(episodeOrdinal(&a), episodeOrdinal(&b)),
			strings.Compare(a.SequenceKey, b.SequenceKey),
		)
	})
}

// Filter keeps only documents whose sequence key is in keys. An empty keys
// slice keeps everything.
func Filter(docs []core.SourceDocument, keys []string) []core.SourceDocument {
	if len(keys) == 0 {
		return docs
	}
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	out := make([]core.SourceDocument, 0, len(keys))
	for _, d := range docs {
		if want[d.SequenceKey] {
			out = append(out, d)
		}
	}
	return out
}
