package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/poiesic/chronicle/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves objects from a map and pages listings two keys at a time.
type fakeS3 struct {
	objects map[string]string
	keys    []string
	denied  map[string]bool
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range f.keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	out := &s3.ListObjectsV2Output{}
	for i := start; i < len(f.keys); i++ {
		if !strings.HasPrefix(f.keys[i], aws.ToString(in.Prefix)) {
			continue
		}
		if len(out.Contents) == 2 {
			out.IsTruncated = aws.Bool(true)
			out.NextContinuationToken = aws.String(f.keys[i])
			break
		}
		out.Contents = append(out.Contents, types.Object{Key: aws.String(f.keys[i])})
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	key := aws.ToString(in.Key)
	if f.denied[key] {
		return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	}
	body, ok := f.objects[key]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("no such key")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func newFake() *fakeS3 {
	f := &fakeS3{
		objects: map[string]string{
			"podcasts/rome/metadata/003.json": `{"google_doc_id":"rome-3","episode_number":"003"}`,
			"podcasts/rome/metadata/001.json": `{"google_doc_id":"rome-1","episode_number":"001"}`,
			"podcasts/rome/metadata/002.json": `{"google_doc_id":"rome-2","episode_number":"002"}`,
			"podcasts/rome/metadata/bad.json": `not json`,
			"podcasts/rome/metadata/readme":   `ignored`,
			"podcasts/rome/text/rome-1.txt":   "h\n---\nm\n---\nIn the beginning.",
		},
		denied: map[string]bool{"podcasts/rome/text/rome-2.txt": true},
	}
	f.keys = []string{
		"podcasts/rome/metadata/001.json",
		"podcasts/rome/metadata/002.json",
		"podcasts/rome/metadata/003.json",
		"podcasts/rome/metadata/bad.json",
		"podcasts/rome/metadata/readme",
		"podcasts/rome/text/rome-1.txt",
	}
	return f
}

func TestCatalog_ListPaginates(t *testing.T) {
	fake := newFake()
	docs, err := NewCatalog(fake, "bucket", "podcasts/rome/metadata/", "history_of_rome", nil).List(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "001", docs[0].SequenceKey)
	assert.Equal(t, "002", docs[1].SequenceKey)
	assert.Equal(t, "003", docs[2].SequenceKey)
	assert.Equal(t, "rome-3", docs[2].DocumentKey)
}

func TestFetcher_Fetch(t *testing.T) {
	f := NewFetcher(newFake(), "bucket", "podcasts/rome/text/")
	ctx := context.Background()

	text, err := f.Fetch(ctx, "rome-1")
	require.NoError(t, err)
	assert.Equal(t, "In the beginning.", source.ExtractTranscript(text))

	_, err = f.Fetch(ctx, "rome-9")
	assert.ErrorIs(t, err, source.ErrNotFound)

	_, err = f.Fetch(ctx, "rome-2")
	assert.ErrorIs(t, err, source.ErrAccessDenied)

	_, err = f.Fetch(ctx, "")
	assert.ErrorIs(t, err, source.ErrInvalidKey)
}
