package gdocs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/poiesic/chronicle/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func run(text string) map[string]any {
	return map[string]any{"textRun": map[string]any{"content": text}}
}

func paragraph(runs ...map[string]any) map[string]any {
	elements := make([]any, len(runs))
	for i, r := range runs {
		elements[i] = r
	}
	return map[string]any{"paragraph": map[string]any{"elements": elements}}
}

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		switch id {
		case "doc-1":
			json.NewEncoder(w).Encode(map[string]any{
				"documentId": "doc-1",
				"body": map[string]any{"content": []any{
					map[string]any{"sectionBreak": map[string]any{}},
					paragraph(run("Title\n")),
					paragraph(run("---\n"), run("season: 1\n---\n")),
					map[string]any{"table": map[string]any{"tableRows": []any{
						map[string]any{"tableCells": []any{
							map[string]any{"content": []any{paragraph(run("cell text. "))}},
						}},
					}}},
					paragraph(run("Spoken words.\n")),
				}},
			})
		case "private":
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 403, "message": "denied"}})
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 404, "message": "missing"}})
		}
	}))
	t.Cleanup(srv.Close)

	f, err := New(context.Background(), Config{Delay: -1},
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return f
}

func TestFetch_ExtractsText(t *testing.T) {
	f := newTestFetcher(t)

	text, err := f.Fetch(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Title\n---\nseason: 1\n---\ncell text. Spoken words.", text)
	assert.Equal(t, "cell text. Spoken words.", source.ExtractTranscript(text))
}

func TestFetch_Errors(t *testing.T) {
	f := newTestFetcher(t)
	ctx := context.Background()

	_, err := f.Fetch(ctx, "gone")
	assert.ErrorIs(t, err, source.ErrNotFound)

	_, err = f.Fetch(ctx, "private")
	assert.ErrorIs(t, err, source.ErrAccessDenied)

	_, err = f.Fetch(ctx, "")
	assert.ErrorIs(t, err, source.ErrInvalidKey)
}
