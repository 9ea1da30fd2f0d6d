package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/chronicle/core"
	"github.com/poiesic/chronicle/retry"
	"github.com/poiesic/chronicle/storage"
	"github.com/poiesic/chronicle/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 8

func setupStore(t *testing.T) *badger.PointStore {
	t.Helper()
	points, _, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	require.NoError(t, points.EnsureCollection(context.Background(), testDims))
	return points
}

func makePoints(sourceName, sequenceKey string, count int) []core.Point {
	points := make([]core.Point, count)
	for i := range points {
		seg := core.Segment{
			Content:      "segment text",
			Position:     i,
			SegmentCount: count,
			Metadata: core.Metadata{
				Kind:        core.SourceKindPodcast,
				SourceName:  sourceName,
				SequenceKey: sequenceKey,
				Podcast:     &core.PodcastFields{EpisodeNumber: sequenceKey},
			},
		}
		seg.ID = core.SegmentID(sourceName, sequenceKey, i)
		points[i] = core.Point{ID: seg.ID, Vector: make([]float32, testDims), Segment: seg}
	}
	return points
}

// failingStore rejects upserts after a number of successful calls.
type failingStore struct {
	storage.PointStore
	allow int
	calls int
}

func (f *failingStore) Upsert(ctx context.Context, points []core.Point) error {
	f.calls++
	if f.calls > f.allow {
		return errors.New("store unavailable")
	}
	return f.PointStore.Upsert(ctx, points)
}

func fastRetry(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond}
}

func TestNewSynchronizer_Validation(t *testing.T) {
	_, err := NewSynchronizer(nil)
	assert.ErrorIs(t, err, ErrStoreRequired)

	store := setupStore(t)
	_, err = NewSynchronizer(store, WithUpsertBatchSize(0))
	assert.Error(t, err)

	_, err = NewSynchronizer(store, WithRetry(retry.Policy{}))
	assert.ErrorIs(t, err, retry.ErrInvalidMaxAttempts)
}

func TestSync_WritesInBatches(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	syncer, err := NewSynchronizer(store, WithUpsertBatchSize(2))
	require.NoError(t, err)

	present, err := syncer.IsPresent(ctx, "rome", "1")
	require.NoError(t, err)
	assert.False(t, present)

	result, err := syncer.Sync(ctx, makePoints("rome", "1", 5))
	require.NoError(t, err)
	assert.Equal(t, 5, result.Written)
	assert.Equal(t, 3, result.Batches)
	assert.Zero(t, result.Pruned)

	present, err = syncer.IsPresent(ctx, "rome", "1")
	require.NoError(t, err)
	assert.True(t, present)

	count, err := store.Count(ctx, storage.Filter{SourceName: "rome", SequenceKey: "1"})
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestSync_Idempotent(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	syncer, err := NewSynchronizer(store)
	require.NoError(t, err)

	for range 2 {
		_, err := syncer.Sync(ctx, makePoints("rome", "1", 4))
		require.NoError(t, err)
	}

	count, err := store.Count(ctx, storage.Filter{SourceName: "rome"})
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestSync_PrunesStaleTail(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	syncer, err := NewSynchronizer(store)
	require.NoError(t, err)

	_, err = syncer.Sync(ctx, makePoints("rome", "1", 6))
	require.NoError(t, err)
	_, err = syncer.Sync(ctx, makePoints("rome", "2", 3))
	require.NoError(t, err)

	result, err := syncer.Sync(ctx, makePoints("rome", "1", 4))
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pruned)

	count, err := store.Count(ctx, storage.Filter{SourceName: "rome", SequenceKey: "1"})
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	count, err = store.Count(ctx, storage.Filter{SourceName: "rome", SequenceKey: "2"})
	require.NoError(t, err)
	assert.Equal(t, 3, count, "other sources untouched")
}

func TestSync_RejectsMixedSources(t *testing.T) {
	store := setupStore(t)
	syncer, err := NewSynchronizer(store)
	require.NoError(t, err)

	points := append(makePoints("rome", "1", 1), makePoints("rome", "2", 1)...)
	_, err = syncer.Sync(context.Background(), points)
	assert.ErrorIs(t, err, ErrMixedSources)
}

func TestSync_StoreWriteError(t *testing.T) {
	store := &failingStore{PointStore: setupStore(t), allow: 1}
	syncer, err := NewSynchronizer(store, WithUpsertBatchSize(2), WithRetry(fastRetry(2)))
	require.NoError(t, err)

	result, err := syncer.Sync(context.Background(), makePoints("rome", "1", 5))
	require.Error(t, err)

	var writeErr *StoreWriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, 1, writeErr.Batch)
	assert.Equal(t, 2, writeErr.Offset)
	assert.Equal(t, 2, result.Written)
	assert.Equal(t, 3, store.calls, "second batch attempted twice")
}

func TestInspect(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	syncer, err := NewSynchronizer(store, WithRetry(fastRetry(1)))
	require.NoError(t, err)

	pres, err := syncer.Inspect(ctx, "revolutions", "1.1")
	require.NoError(t, err)
	assert.Zero(t, pres.Stored)
	assert.False(t, pres.Complete())

	points := makePoints("revolutions", "1.1", 4)
	require.NoError(t, store.Upsert(ctx, points[:2]))
	pres, err = syncer.Inspect(ctx, "revolutions", "1.1")
	require.NoError(t, err)
	assert.Equal(t, Presence{Stored: 2, Expected: 4, Covered: 2}, pres)
	present, err := syncer.IsPresent(ctx, "revolutions", "1.1")
	require.NoError(t, err)
	assert.False(t, present, "a partial write is not present")

	points[3].EmbeddingMissing = true
	require.NoError(t, store.Upsert(ctx, points[2:]))
	pres, err = syncer.Inspect(ctx, "revolutions", "1.1")
	require.NoError(t, err)
	assert.Equal(t, 1, pres.MissingEmbeddings)
	assert.False(t, pres.Complete(), "zero-filled vectors are not complete")

	points[3].EmbeddingMissing = false
	require.NoError(t, store.Upsert(ctx, points[3:]))
	present, err = syncer.IsPresent(ctx, "revolutions", "1.1")
	require.NoError(t, err)
	assert.True(t, present)
}

func TestSync_Empty(t *testing.T) {
	syncer, err := NewSynchronizer(setupStore(t))
	require.NoError(t, err)

	result, err := syncer.Sync(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.Written)
}
