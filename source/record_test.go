package source

import (
	"testing"

	"github.com/poiesic/chronicle/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTranscript(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"header stripped", "title: x\n---\nseason: 1\n---\n  The transcript.  ", "The transcript."},
		{"delimiters in body kept", "a---b---c---d", "c---d"},
		{"single delimiter keeps everything", "intro---body", "intro---body"},
		{"no header", "  plain text \n", "plain text"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractTranscript(tt.raw))
		})
	}
}

func TestParseRecord(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantSeq  string
		wantKey  string
		wantKind core.SourceKind
		wantErr  bool
	}{
		{
			name:     "legacy field names with numeric season",
			data:     `{"google_doc_id":"1Ab","google_doc_url":"https://d/1Ab","title":"Tennis Court Oath","season":3,"episode_number":"12","published":"2014-09-15"}`,
			wantSeq:  "3.12",
			wantKey:  "1Ab",
			wantKind: core.SourceKindPodcast,
		},
		{
			name:     "numeric episode without season",
			data:     `{"document_key":"rome-7","episode_number":7}`,
			wantSeq:  "7",
			wantKey:  "rome-7",
			wantKind: core.SourceKindPodcast,
		},
		{
			name:     "string season",
			data:     `{"document_key":"k","season":"2","episode_number":"4a"}`,
			wantSeq:  "2.4a",
			wantKey:  "k",
			wantKind: core.SourceKindPodcast,
		},
		{
			name:     "document kind with explicit sequence",
			data:     `{"document_key":"essay","kind":"document","sequence_key":"essay-1","author":"A. Writer"}`,
			wantSeq:  "essay-1",
			wantKey:  "essay",
			wantKind: core.SourceKindDocument,
		},
		{name: "missing key", data: `{"episode_number":"1"}`, wantErr: true},
		{name: "missing episode", data: `{"document_key":"k"}`, wantErr: true},
		{name: "malformed", data: `{"document_key":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseRecord([]byte(tt.data))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRecord)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSeq, r.Sequence())
			assert.Equal(t, tt.wantKey, r.DocumentKey)
			assert.Equal(t, tt.wantKind, r.Kind)

			doc, err := r.Document("corpus")
			require.NoError(t, err)
			assert.Equal(t, "corpus", doc.SourceName)
			assert.Equal(t, tt.wantSeq, doc.SequenceKey)
		})
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode("corpus", "x.json", []byte(`{"document_key":"k","episode_number":"1","kind":"video"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidKind)
	assert.Contains(t, err.Error(), "x.json")
}

func TestSortDocuments(t *testing.T) {
	docs := []core.SourceDocument{
		{SequenceKey: "2.1", Podcast: &core.PodcastFields{Season: 2, EpisodeNumber: "1"}},
		{SequenceKey: "1.10", Podcast: &core.PodcastFields{Season: 1, EpisodeNumber: "10"}},
		{SequenceKey: "1.3b", Podcast: &core.PodcastFields{Season: 1, EpisodeNumber: "3b"}},
		{SequenceKey: "1.2", Podcast: &core.PodcastFields{Season: 1, EpisodeNumber: "2"}},
		{SequenceKey: "1.3a", Podcast: &core.PodcastFields{Season: 1, EpisodeNumber: "3a"}},
	}
	SortDocuments(docs)

	var keys []string
	for _, d := range docs {
		keys = append(keys, d.SequenceKey)
	}
	assert.Equal(t, []string{"1.2", "1.3a", "1.3b", "1.10", "2.1"}, keys)
}

func TestFilter(t *testing.T) {
	docs := []core.SourceDocument{{SequenceKey: "1"}, {SequenceKey: "2"}, {SequenceKey: "3"}}

	assert.Len(t, Filter(docs, nil), 3)
	got := Filter(docs, []string{"3", "1", "9"})
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].SequenceKey)
	assert.Equal(t, "3", got[1].SequenceKey)
}
