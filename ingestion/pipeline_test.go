package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/poiesic/chronicle/ai/mock"
	"github.com/poiesic/chronicle/chunking"
	"github.com/poiesic/chronicle/core"
	"github.com/poiesic/chronicle/embedding"
	"github.com/poiesic/chronicle/metadata"
	"github.com/poiesic/chronicle/metrics"
	"github.com/poiesic/chronicle/source"
	"github.com/poiesic/chronicle/storage"
	"github.com/poiesic/chronicle/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCorpus = "history_of_rome"

type memCatalog struct {
	docs []core.SourceDocument
	err  error
}

func (c *memCatalog) List(ctx context.Context) ([]core.SourceDocument, error) {
	return c.docs, c.err
}

// memFetcher serves transcripts by document key and counts fetches.
type memFetcher struct {
	mu     sync.Mutex
	texts  map[string]string
	errs   map[string]error
	counts map[string]int
}

func (f *memFetcher) Fetch(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	if err := f.errs[key]; err != nil {
		return "", err
	}
	text, ok := f.texts[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", source.ErrNotFound, key)
	}
	return text, nil
}

func (f *memFetcher) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

func episode(n string) core.SourceDocument {
	return core.SourceDocument{
		DocumentKey: "doc-" + n,
		SourceName:  testCorpus,
		SequenceKey: n,
		Title:       "Episode " + n,
		Kind:        core.SourceKindPodcast,
		Podcast:     &core.PodcastFields{EpisodeNumber: n},
	}
}

func transcript(sentences int) string {
	body := strings.Repeat("The senate met again and argued at length. ", sentences)
	return "title: episode\n---\nseason: 0\n---\n" + body
}

type fixture struct {
	store    *badger.PointStore
	runs     *badger.RunRepository
	catalog  *memCatalog
	fetcher  *memFetcher
	embedder *mock.MockEmbedder
	recorder *metrics.Recorder
	deps     Dependencies
}

func newFixture(t *testing.T, batcherOpts ...embedding.Option) *fixture {
	t.Helper()
	points, runs, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	require.NoError(t, points.EnsureCollection(context.Background(), mock.DefaultDimensions))

	f := &fixture{
		store: points,
		runs:  runs,
		catalog: &memCatalog{docs: []core.SourceDocument{
			episode("1"), episode("2"), episode("3"),
		}},
		fetcher: &memFetcher{
			texts: map[string]string{
				"doc-1": transcript(40),
				"doc-2": transcript(10),
				"doc-3": transcript(60),
			},
			errs:   map[string]error{},
			counts: map[string]int{},
		},
		embedder: mock.NewMockEmbedder(),
		recorder: metrics.New(),
	}

	preparer, err := metadata.NewPreparer(metadata.WithEmbeddingModel("test-model"))
	require.NoError(t, err)
	chunker, err := chunking.New()
	require.NoError(t, err)
	opts := append([]embedding.Option{
		embedding.WithDelay(0),
		embedding.WithRetry(fastRetry(1)),
		embedding.WithDimensions(mock.DefaultDimensions),
	}, batcherOpts...)
	batcher, err := embedding.NewBatcher(f.embedder, opts...)
	require.NoError(t, err)
	syncer, err := NewSynchronizer(points, WithRetry(fastRetry(1)))
	require.NoError(t, err)

	f.deps = Dependencies{
		SourceName:   testCorpus,
		Catalog:      f.catalog,
		Fetcher:      f.fetcher,
		Preparer:     preparer,
		Chunker:      chunker,
		Batcher:      batcher,
		Synchronizer: syncer,
		Runs:         runs,
		Metrics:      f.recorder,
	}
	return f
}

func (f *fixture) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithFetchRetry(fastRetry(2))}, opts...)
	p, err := NewPipeline(f.deps, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func (f *fixture) count(t *testing.T, sequenceKey string) int {
	t.Helper()
	n, err := f.store.Count(context.Background(), storage.Filter{SourceName: testCorpus, SequenceKey: sequenceKey})
	require.NoError(t, err)
	return n
}

func TestNewPipeline_RequiresDependencies(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		mutate func(*Dependencies)
		want   error
	}{
		{"source name", func(d *Dependencies) { d.SourceName = "" }, ErrSourceNameRequired},
		{"catalog", func(d *Dependencies) { d.Catalog = nil }, ErrCatalogRequired},
		{"fetcher", func(d *Dependencies) { d.Fetcher = nil }, ErrFetcherRequired},
		{"preparer", func(d *Dependencies) { d.Preparer = nil }, ErrPreparerRequired},
		{"chunker", func(d *Dependencies) { d.Chunker = nil }, ErrChunkerRequired},
		{"batcher", func(d *Dependencies) { d.Batcher = nil }, ErrBatcherRequired},
		{"synchronizer", func(d *Dependencies) { d.Synchronizer = nil }, ErrSynchronizerRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := f.deps
			tt.mutate(&deps)
			_, err := NewPipeline(deps)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := NewPipeline(f.deps, WithMinContentLength(-1))
	assert.Error(t, err)
}

func TestRun_IngestsCatalog(t *testing.T) {
	f := newFixture(t)
	var progress bytes.Buffer
	p := f.pipeline(t, WithPoolSize(3), WithProgress(&progress))

	report, err := p.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Attempted())
	assert.Equal(t, 3, report.Succeeded())
	assert.Zero(t, report.Failed())
	assert.Empty(t, report.Failures())
	assert.Contains(t, progress.String(), "Sources: 3/3")

	total := 0
	for _, key := range []string{"1", "2", "3"} {
		n := f.count(t, key)
		assert.Positive(t, n, "source %s stored", key)
		total += n
	}
	assert.Equal(t, total, report.Segments())

	// Stored points carry deterministic ids and prepared metadata.
	page, err := f.store.Scroll(context.Background(), storage.ScrollRequest{
		Filter: storage.Filter{SourceName: testCorpus, SequenceKey: "2"},
		Limit:  100,
	})
	require.NoError(t, err)
	require.NotEmpty(t, page.Points)
	for _, pt := range page.Points {
		assert.Equal(t, core.SegmentID(testCorpus, "2", pt.Segment.Position), pt.ID)
		assert.Equal(t, "test-model", pt.Segment.Metadata.EmbeddingModel)
		assert.Equal(t, len(page.Points), pt.Segment.SegmentCount)
		assert.False(t, pt.EmbeddingMissing)
		assert.NotContains(t, pt.Segment.Content, "season: 0")
	}

	last, err := f.runs.LastRun(context.Background(), testCorpus)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, report.ID, last.ID)
	assert.Equal(t, 3, last.Succeeded)
}

func TestRun_SkipsPresentSources(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	_, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)
	before := f.count(t, "1")

	report, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Skipped())
	assert.Zero(t, report.Succeeded())
	assert.Equal(t, 1, f.fetcher.count("doc-1"), "present source not refetched")
	assert.Equal(t, before, f.count(t, "1"))
}

func TestRun_ForceIsIdempotent(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	_, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)
	before := f.count(t, "3")

	report, err := p.Run(ctx, RunOptions{Force: true, Sources: []string{"3"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempted())
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, before, f.count(t, "3"))
	assert.Equal(t, 2, f.fetcher.count("doc-3"))
}

func TestRun_ShrunkSourceReplacesTail(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	_, err := p.Run(ctx, RunOptions{Sources: []string{"3"}})
	require.NoError(t, err)
	long := f.count(t, "3")

	f.fetcher.texts["doc-3"] = transcript(5)
	_, err = p.Run(ctx, RunOptions{Force: true, Sources: []string{"3"}})
	require.NoError(t, err)

	short := f.count(t, "3")
	assert.Less(t, short, long)
	assert.Equal(t, 1, short)
}

func TestRun_RecordsFailuresAndContinues(t *testing.T) {
	f := newFixture(t)
	f.fetcher.errs["doc-1"] = errors.New("connection reset")
	f.fetcher.texts["doc-2"] = "header\n---\nmeta\n---\ntoo short"
	delete(f.fetcher.texts, "doc-3")
	f.catalog.docs = append(f.catalog.docs, episode("4"))
	f.fetcher.texts["doc-4"] = transcript(20)

	p := f.pipeline(t)
	report, err := p.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, report.Attempted())
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 3, report.Failed())

	failures := report.Failures()
	require.Len(t, failures, 3)
	assert.Equal(t, "1", failures[0].SequenceKey)
	assert.Equal(t, StageFetch, failures[0].Stage)
	assert.Equal(t, "doc-1", failures[0].DocumentKey)
	assert.Equal(t, StageExtract, failures[1].Stage)
	assert.Equal(t, StageFetch, failures[2].Stage)

	assert.Equal(t, 2, f.fetcher.count("doc-1"), "transient fetch errors are retried")
	assert.Equal(t, 1, f.fetcher.count("doc-3"), "missing documents are not retried")
	assert.Zero(t, f.count(t, "1"))
	assert.Positive(t, f.count(t, "4"))
}

func TestRun_RetryFailed(t *testing.T) {
	f := newFixture(t)
	f.fetcher.errs["doc-2"] = errors.New("timeout")
	p := f.pipeline(t)
	ctx := context.Background()

	first, err := p.Run(ctx, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, first.Failed())

	delete(f.fetcher.errs, "doc-2")
	retried, err := p.Run(ctx, RunOptions{RetryFailed: true})
	require.NoError(t, err)
	assert.Equal(t, 1, retried.Attempted())
	assert.Equal(t, 1, retried.Succeeded())
	assert.Equal(t, 1, f.fetcher.count("doc-1"))
	assert.Positive(t, f.count(t, "2"))

	// Nothing failed last time, so nothing to do.
	empty, err := p.Run(ctx, RunOptions{RetryFailed: true})
	require.NoError(t, err)
	assert.Zero(t, empty.Attempted())
}

func TestRun_PartialWriteIsRepaired(t *testing.T) {
	ctx := context.Background()

	for _, tt := range []struct {
		name string
		opts RunOptions
	}{
		{"retry failed", RunOptions{RetryFailed: true}},
		{"plain run", RunOptions{Sources: []string{"3"}}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			healthy := f.deps.Synchronizer

			broken, err := NewSynchronizer(&failingStore{PointStore: f.store, allow: 1},
				WithUpsertBatchSize(1), WithRetry(fastRetry(1)))
			require.NoError(t, err)
			f.deps.Synchronizer = broken
			first, err := f.pipeline(t).Run(ctx, RunOptions{Sources: []string{"3"}})
			require.NoError(t, err)
			require.Len(t, first.Failures(), 1)
			assert.Equal(t, StageStore, first.Failures()[0].Stage)
			require.Equal(t, 1, f.count(t, "3"), "one batch landed before the failure")

			f.deps.Synchronizer = healthy
			report, err := f.pipeline(t).Run(ctx, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, 1, report.Attempted())
			assert.Equal(t, 1, report.Succeeded())
			assert.Zero(t, report.Skipped())

			pres, err := healthy.Inspect(ctx, testCorpus, "3")
			require.NoError(t, err)
			assert.True(t, pres.Complete())
			assert.Greater(t, pres.Expected, 1)
			assert.Equal(t, pres.Expected, f.count(t, "3"))
		})
	}
}

func TestRun_RetryFailedReprocessesCompleteSources(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx := context.Background()

	_, err := p.Run(ctx, RunOptions{Sources: []string{"1"}})
	require.NoError(t, err)

	// A later run fails on the same source after its points were stored.
	f.fetcher.errs["doc-1"] = errors.New("timeout")
	failed, err := p.Run(ctx, RunOptions{Force: true, Sources: []string{"1"}})
	require.NoError(t, err)
	require.Equal(t, 1, failed.Failed())

	delete(f.fetcher.errs, "doc-1")
	report, err := p.Run(ctx, RunOptions{RetryFailed: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded())
	assert.Zero(t, report.Skipped())
}

func TestRun_RetryFailedNeedsRunRepository(t *testing.T) {
	f := newFixture(t)
	f.deps.Runs = nil
	p := f.pipeline(t)

	_, err := p.Run(context.Background(), RunOptions{RetryFailed: true})
	assert.ErrorIs(t, err, ErrRunsRequired)
}

func TestRun_UnknownSourceIsReported(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)

	report, err := p.Run(context.Background(), RunOptions{Sources: []string{"2", "99", "2"}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Attempted())
	assert.Equal(t, 1, report.Succeeded())
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, "99", report.Failures()[0].SequenceKey)
	assert.Equal(t, StageCatalog, report.Failures()[0].Stage)
}

func TestRun_CatalogErrorIsFatal(t *testing.T) {
	f := newFixture(t)
	f.catalog.err = errors.New("bucket unreachable")
	p := f.pipeline(t)

	_, err := p.Run(context.Background(), RunOptions{})
	assert.ErrorContains(t, err, "bucket unreachable")
}

func TestRun_StrictEmbeddingFailure(t *testing.T) {
	f := newFixture(t)
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding service down")
	}
	p := f.pipeline(t)

	report, err := p.Run(context.Background(), RunOptions{Sources: []string{"1"}})
	require.NoError(t, err)
	require.Len(t, report.Failures(), 1)
	assert.Equal(t, StageEmbed, report.Failures()[0].Stage)
	assert.Zero(t, f.count(t, "1"), "nothing stored for a failed source")
}

func TestRun_ZeroFillEmbeddingFailure(t *testing.T) {
	f := newFixture(t, embedding.WithPolicy(embedding.PolicyZeroFill))
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding service down")
	}
	p := f.pipeline(t)

	report, err := p.Run(context.Background(), RunOptions{Sources: []string{"2"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded())

	page, err := f.store.Scroll(context.Background(), storage.ScrollRequest{
		Filter: storage.Filter{SourceName: testCorpus, SequenceKey: "2"},
		Limit:  10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, page.Points)
	for _, pt := range page.Points {
		assert.True(t, pt.EmbeddingMissing)
	}
	assert.Equal(t, len(page.Points), report.EmbeddingMissing())
}

func TestRun_ZeroFilledSourceIsReembedded(t *testing.T) {
	f := newFixture(t, embedding.WithPolicy(embedding.PolicyZeroFill))
	f.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding service down")
	}
	p := f.pipeline(t)
	ctx := context.Background()

	first, err := p.Run(ctx, RunOptions{Sources: []string{"2"}})
	require.NoError(t, err)
	require.Positive(t, first.EmbeddingMissing())

	f.embedder.EmbedTextsFunc = nil
	report, err := p.Run(ctx, RunOptions{Sources: []string{"2"}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded())
	assert.Equal(t, 1, report.Repaired())
	assert.Zero(t, report.EmbeddingMissing())

	pres, err := f.deps.Synchronizer.Inspect(ctx, testCorpus, "2")
	require.NoError(t, err)
	assert.Zero(t, pres.MissingEmbeddings)
	assert.True(t, pres.Complete())

	again, err := p.Run(ctx, RunOptions{Sources: []string{"2"}})
	require.NoError(t, err)
	assert.Equal(t, 1, again.Skipped())
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t)
	p := f.pipeline(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx, RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
