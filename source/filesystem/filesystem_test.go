package filesystem

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/poiesic/chronicle/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestCatalog_List(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `{"google_doc_id":"doc-b","season":1,"episode_number":"10"}`)
	writeFile(t, dir, "a.json", `{"google_doc_id":"doc-a","season":1,"episode_number":"2"}`)
	writeFile(t, dir, "bad.json", `{"title":"no key"}`)
	writeFile(t, dir, "notes.txt", `ignored`)

	docs, err := NewCatalog(dir, "revolutions", nil).List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "1.2", docs[0].SequenceKey)
	assert.Equal(t, "doc-a", docs[0].DocumentKey)
	assert.Equal(t, "1.10", docs[1].SequenceKey)
	assert.Equal(t, "revolutions", docs[1].SourceName)
}

func TestCatalog_MissingDir(t *testing.T) {
	_, err := NewCatalog(filepath.Join(t.TempDir(), "nope"), "x", nil).List(context.Background())
	assert.ErrorIs(t, err, source.ErrNotFound)
}

func TestFetcher_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "doc-a.txt", "header\n---\nmeta\n---\nbody")

	f := NewFetcher(dir)
	text, err := f.Fetch(context.Background(), "doc-a")
	require.NoError(t, err)
	assert.Equal(t, "body", source.ExtractTranscript(text))

	_, err = f.Fetch(context.Background(), "doc-missing")
	assert.ErrorIs(t, err, source.ErrNotFound)

	_, err = f.Fetch(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, source.ErrInvalidKey)
}
