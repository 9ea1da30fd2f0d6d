package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreRequired is returned when a point store is not provided.
	ErrStoreRequired = errors.New("point store required")

	// ErrCatalogRequired is returned when a catalog is not provided.
	ErrCatalogRequired = errors.New("catalog required")

	// ErrFetcherRequired is returned when a fetcher is not provided.
	ErrFetcherRequired = errors.New("fetcher required")

	// ErrPreparerRequired is returned when a metadata preparer is not provided.
	ErrPreparerRequired = errors.New("metadata preparer required")

	// ErrChunkerRequired is returned when a chunker is not provided.
	ErrChunkerRequired = errors.New("chunker required")

	// ErrBatcherRequired is returned when an embedding batcher is not provided.
	ErrBatcherRequired = errors.New("embedding batcher required")

	// ErrSynchronizerRequired is returned when a synchronizer is not provided.
	ErrSynchronizerRequired = errors.New("synchronizer required")

	// ErrSourceNameRequired is returned when the corpus name is empty.
	ErrSourceNameRequired = errors.New("source name required")

	// ErrRunsRequired is returned when retrying failures without a run repository.
	ErrRunsRequired = errors.New("run repository required to retry failed sources")

	// ErrMixedSources is returned when one sync call spans several sources.
	ErrMixedSources = errors.New("points belong to more than one source")

	// ErrNotInCatalog is recorded for requested sources the catalog does not list.
	ErrNotInCatalog = errors.New("source not in catalog")
)

// Stages of per-source processing, as reported in failures.
const (
	StageCatalog  = "catalog"
	StagePresence = "presence"
	StageFetch    = "fetch"
	StageExtract  = "extract"
	StagePrepare  = "prepare"
	StageChunk    = "chunk"
	StageEmbed    = "embed"
	StageStore    = "store"
	StageSchedule = "schedule"
)

// SourceFetchError reports a document that could not be retrieved.
type SourceFetchError struct {
	SequenceKey string
	DocumentKey string
	Err         error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetch %s (document %s): %v", e.SequenceKey, e.DocumentKey, e.Err)
}

func (e *SourceFetchError) Unwrap() error {
	return e.Err
}

// EmptyContentError reports a transcript too short to be worth indexing.
type EmptyContentError struct {
	SequenceKey string
	Length      int
	Minimum     int
}

func (e *EmptyContentError) Error() string {
	return fmt.Sprintf("source %s: extracted content has %d characters, need at least %d",
		e.SequenceKey, e.Length, e.Minimum)
}

// StoreWriteError reports an upsert batch the store rejected after retries.
type StoreWriteError struct {
	Batch  int
	Offset int
	Err    error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("store batch %d (from position %d): %v", e.Batch, e.Offset, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}
