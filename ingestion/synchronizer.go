package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/chronicle/core"
	"github.com/poiesic/chronicle/metrics"
	"github.com/poiesic/chronicle/retry"
	"github.com/poiesic/chronicle/storage"
)

// DefaultUpsertBatchSize is the number of points written per store call.
const DefaultUpsertBatchSize = 50

// SyncResult summarizes one Sync call.
type SyncResult struct {
	Written int
	Batches int
	Pruned  int
}

// Synchronizer writes a source's points to the store and removes stale ones.
type Synchronizer struct {
	store     storage.PointStore
	batchSize int
	retry     retry.Policy
	metrics   *metrics.Recorder
	logger    *slog.Logger
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer) error

// WithUpsertBatchSize sets how many points go into one upsert.
func WithUpsertBatchSize(size int) SyncOption {
	return func(s *Synchronizer) error {
		if size <= 0 {
			return fmt.Errorf("upsert batch size must be greater than 0, got %d", size)
		}
		s.batchSize = size
		return nil
	}
}

// WithRetry sets the retry policy for store writes.
func WithRetry(policy retry.Policy) SyncOption {
	return func(s *Synchronizer) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		s.retry = policy
		return nil
	}
}

// WithSyncMetrics records upsert outcomes.
func WithSyncMetrics(recorder *metrics.Recorder) SyncOption {
	return func(s *Synchronizer) error {
		s.metrics = recorder
		return nil
	}
}

// WithSyncLogger sets a custom logger.
func WithSyncLogger(logger *slog.Logger) SyncOption {
	return func(s *Synchronizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSynchronizer creates a Synchronizer writing to store.
func NewSynchronizer(store storage.PointStore, opts ...SyncOption) (*Synchronizer, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	s := &Synchronizer{
		store:     store,
		batchSize: DefaultUpsertBatchSize,
		retry:     retry.Default().WithPermanent(storage.ErrDimensionMismatch, storage.ErrCollectionMissing,
			storage.ErrInvalidQuery, storage.ErrRejected),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "synchronizer")
	return s, nil
}

// Presence describes what the store holds for one source.
type Presence struct {
	// Stored is the number of points found.
	Stored int
	// Expected is the segment count recorded on the stored points, or 0 when
	// the points disagree about it.
	Expected int
	// Covered is the number of distinct positions in [0, Expected).
	Covered int
	// MissingEmbeddings counts points stored with a zero-filled vector.
	MissingEmbeddings int
}

// Complete reports whether every segment of the source is stored with a real
// embedding.
func (p Presence) Complete() bool {
	return p.Expected > 0 && p.Covered == p.Expected && p.MissingEmbeddings == 0
}

// Inspect scans the stored points of one source.
func (s *Synchronizer) Inspect(ctx context.Context, sourceName, sequenceKey string) (Presence, error) {
	var pres Presence
	positions := make(map[int]struct{})
	consistent := true
	err := storage.ScrollAll(ctx, s.store, storage.Filter{SourceName: sourceName, SequenceKey: sequenceKey}, 0,
		func(p core.Point) error {
			if pres.Stored == 0 {
				pres.Expected = p.Segment.SegmentCount
			} else if p.Segment.SegmentCount != pres.Expected {
				consistent = false
			}
			pres.Stored++
			positions[p.Segment.Position] = struct{}{}
			if p.EmbeddingMissing {
				pres.MissingEmbeddings++
			}
			return nil
		})
	if err != nil {
		return Presence{}, err
	}
	if !consistent {
		pres.Expected = 0
	}
	for pos := range positions {
		if pos >= 0 && pos < pres.Expected {
			pres.Covered++
		}
	}
	return pres, nil
}

// IsPresent reports whether the store holds every segment of the source with
// a real embedding. A source interrupted mid-write or stored with zero-filled
// vectors is not present.
func (s *Synchronizer) IsPresent(ctx context.Context, sourceName, sequenceKey string) (bool, error) {
	pres, err := s.Inspect(ctx, sourceName, sequenceKey)
	if err != nil {
		return false, err
	}
	return pres.Complete(), nil
}

// Sync upserts the points of one source in position order, then deletes any
// stored point of that source whose position is at or past the new segment
// count. Points must all belong to the same (source name, sequence key).
func (s *Synchronizer) Sync(ctx context.Context, points []core.Point) (*SyncResult, error) {
	result := &SyncResult{}
	if len(points) == 0 {
		return result, nil
	}

	first := &points[0].Segment.Metadata
	for i := range points {
		m := &points[i].Segment.Metadata
		if m.SourceName != first.SourceName || m.SequenceKey != first.SequenceKey {
			return nil, fmt.Errorf("%w: %s/%s and %s/%s", ErrMixedSources,
				first.SourceName, first.SequenceKey, m.SourceName, m.SequenceKey)
		}
	}
	logger := s.logger.With("source", first.SourceName, "sequence", first.SequenceKey)

	for offset := 0; offset < len(points); offset += s.batchSize {
		end := min(offset+s.batchSize, len(points))
		batch := points[offset:end]
		index := result.Batches
		result.Batches++

		err := s.retry.Do(ctx, func(ctx context.Context) error {
			return s.store.Upsert(ctx, batch)
		})
		s.metrics.StoreWrite(err == nil)
		if err != nil {
			logger.Error("upsert batch failed", "stage", StageStore, "batch", index, "offset", offset, "err", err)
			return result, &StoreWriteError{Batch: index, Offset: offset, Err: err}
		}
		result.Written += len(batch)
	}

	pruned, err := s.pruneTail(ctx, first.SourceName, first.SequenceKey, points[0].Segment.SegmentCount)
	if err != nil {
		return result, fmt.Errorf("prune stale segments: %w", err)
	}
	result.Pruned = pruned
	if pruned > 0 {
		logger.Info("pruned stale segments", "count", pruned)
	}
	return result, nil
}

func (s *Synchronizer) pruneTail(ctx context.Context, sourceName, sequenceKey string, count int) (int, error) {
	var stale []string
	err := storage.ScrollAll(ctx, s.store, storage.Filter{SourceName: sourceName, SequenceKey: sequenceKey}, 0,
		func(p core.Point) error {
			if p.Segment.Position >= count {
				stale = append(stale, p.ID)
			}
			return nil
		})
	if err != nil || len(stale) == 0 {
		return 0, err
	}

	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, stale)
	})
	if err != nil {
		return 0, err
	}
	s.metrics.PointsDeleted("stale", len(stale))
	return len(stale), nil
}
