// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package chronicle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/chronicle/ai"
	"github.com/poiesic/chronicle/ai/openai"
	"github.com/poiesic/chronicle/chunking"
	"github.com/poiesic/chronicle/config"
	"github.com/poiesic/chronicle/core"
	"github.com/poiesic/chronicle/embedding"
	"github.com/poiesic/chronicle/ingestion"
	"github.com/poiesic/chronicle/metadata"
	"github.com/poiesic/chronicle/metrics"
	"github.com/poiesic/chronicle/reconcile"
	"github.com/poiesic/chronicle/source"
	"github.com/poiesic/chronicle/source/filesystem"
	"github.com/poiesic/chronicle/source/gdocs"
	s3source "github.com/poiesic/chronicle/source/s3"
	"github.com/poiesic/chronicle/storage"
	"github.com/poiesic/chronicle/storage/badger"
	"github.com/poiesic/chronicle/storage/qdrant"
)

// Engine wires the configured store, run ledger, embedding service and
// document source together. Run history always lives in the embedded badger
// database; points go to Qdrant or to the same badger database.
type Engine struct {
	cfg      *config.Config
	backend  *badger.Backend
	store    storage.PointStore
	runs     storage.RunRepository
	provider ai.AIProvider
	embedder ai.Embedder
	catalog  source.Catalog
	fetcher  source.Fetcher
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	store    storage.PointStore
	embedder ai.Embedder
	catalog  source.Catalog
	fetcher  source.Fetcher
	logger   *slog.Logger
}

// WithPointStore uses store instead of the configured backend.
func WithPointStore(store storage.PointStore) EngineOption {
	return func(o *engineOptions) {
		o.store = store
	}
}

// WithEmbedder uses embedder instead of the configured embedding service.
func WithEmbedder(embedder ai.Embedder) EngineOption {
	return func(o *engineOptions) {
		o.embedder = embedder
	}
}

// WithSource uses the given catalog and fetcher instead of the configured ones.
func WithSource(catalog source.Catalog, fetcher source.Fetcher) EngineOption {
	return func(o *engineOptions) {
		o.catalog = catalog
		o.fetcher = fetcher
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// Open creates an Engine from cfg. The caller must Close it.
func Open(cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	backend, err := badger.OpenBackend(cfg.Store.Path, cfg.Store.InMemory)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		backend:  backend,
		runs:     badger.NewRunRepository(backend),
		embedder: options.embedder,
		catalog:  options.catalog,
		fetcher:  options.fetcher,
		metrics:  metrics.New(),
		logger:   options.logger,
	}

	switch {
	case options.store != nil:
		e.store = options.store
	case cfg.Store.Backend == config.BackendBadger:
		e.store, err = badger.NewPointStore(backend)
	default:
		e.store, err = qdrant.New(cfg.QdrantStoreConfig(), qdrant.WithLogger(e.logger))
	}
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("open point store: %w", err)
	}
	return e, nil
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Store returns the point store.
func (e *Engine) Store() storage.PointStore {
	return e.store
}

// Runs returns the run history repository.
func (e *Engine) Runs() storage.RunRepository {
	return e.runs
}

// Metrics returns the engine's metrics recorder.
func (e *Engine) Metrics() *metrics.Recorder {
	return e.metrics
}

// InitCollection creates the collection and its payload indexes.
// Existing ones are left as they are.
func (e *Engine) InitCollection(ctx context.Context) error {
	if err := e.store.EnsureCollection(ctx, e.cfg.Embedding.Dimensions); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	return storage.EnsureIndexes(ctx, e.store, core.IndexedFields)
}

// Catalog returns the configured catalog, building it on first use.
func (e *Engine) Catalog(ctx context.Context) (source.Catalog, error) {
	if e.catalog != nil {
		return e.catalog, nil
	}
	src := e.cfg.Source
	switch src.Catalog {
	case config.SourceS3:
		client, err := e.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		e.catalog = s3source.NewCatalog(client, src.Bucket, src.MetadataPrefix, e.cfg.Corpus, e.logger)
	default:
		e.catalog = filesystem.NewCatalog(src.MetadataDir, e.cfg.Corpus, e.logger)
	}
	return e.catalog, nil
}

// Fetcher returns the configured document fetcher, building it on first use.
func (e *Engine) Fetcher(ctx context.Context) (source.Fetcher, error) {
	if e.fetcher != nil {
		return e.fetcher, nil
	}
	src := e.cfg.Source
	switch src.Fetcher {
	case config.SourceS3:
		client, err := e.s3Client(ctx)
		if err != nil {
			return nil, err
		}
		e.fetcher = s3source.NewFetcher(client, src.Bucket, src.TranscriptPrefix)
	case config.SourceGoogleDocs:
		f, err := gdocs.New(ctx, gdocs.Config{CredentialsFile: src.CredentialsFile, Delay: src.RequestDelay})
		if err != nil {
			return nil, err
		}
		e.fetcher = f
	default:
		e.fetcher = filesystem.NewFetcher(src.TranscriptDir)
	}
	return e.fetcher, nil
}

func (e *Engine) s3Client(ctx context.Context) (s3source.Client, error) {
	return s3source.NewClient(ctx, s3source.ClientConfig{
		Region:          e.cfg.Source.Region,
		AccessKeyID:     e.cfg.Source.AccessKeyID,
		SecretAccessKey: e.cfg.Source.SecretAccessKey,
	})
}

// Embedder returns the embedding service, connecting on first use.
func (e *Engine) Embedder() (ai.Embedder, error) {
	if e.embedder != nil {
		return e.embedder, nil
	}
	provider, err := openai.NewProvider(e.cfg.AIConfig())
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	e.provider = provider
	e.embedder = provider.Embedder()
	return e.embedder, nil
}

// NewPipeline assembles an ingestion pipeline for the configured corpus.
// Extra options are applied after the configured ones. The collection and its
// indexes are created first, so a store that cannot take the configured
// vectors fails here rather than once per source.
func (e *Engine) NewPipeline(ctx context.Context, opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	cfg := e.cfg

	if err := e.InitCollection(ctx); err != nil {
		return nil, err
	}

	catalog, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	fetcher, err := e.Fetcher(ctx)
	if err != nil {
		return nil, err
	}
	embedder, err := e.Embedder()
	if err != nil {
		return nil, err
	}

	preparer, err := metadata.NewPreparer(
		metadata.WithEmbeddingModel(cfg.Embedding.Model),
		metadata.WithProcessingVersion(cfg.Pipeline.ProcessingVersion),
	)
	if err != nil {
		return nil, err
	}
	chunker, err := chunking.New(
		chunking.WithSize(cfg.Chunking.Size),
		chunking.WithOverlap(cfg.Chunking.Overlap),
		chunking.WithMaxSegments(cfg.Chunking.MaxSegments),
	)
	if err != nil {
		return nil, err
	}
	policy, err := embedding.ParsePolicy(cfg.Embedding.Policy)
	if err != nil {
		return nil, err
	}
	batcher, err := embedding.NewBatcher(embedder,
		embedding.WithBatchSize(cfg.Embedding.BatchSize),
		embedding.WithDelay(cfg.Embedding.Delay),
		embedding.WithPolicy(policy),
		embedding.WithDimensions(cfg.Embedding.Dimensions),
		embedding.WithRetry(cfg.RetryPolicy()),
		embedding.WithMetrics(e.metrics),
		embedding.WithLogger(e.logger),
	)
	if err != nil {
		return nil, err
	}
	syncer, err := ingestion.NewSynchronizer(e.store,
		ingestion.WithUpsertBatchSize(cfg.Pipeline.UpsertBatchSize),
		ingestion.WithRetry(cfg.RetryPolicy().WithPermanent(
			storage.ErrDimensionMismatch, storage.ErrCollectionMissing, storage.ErrInvalidQuery,
			storage.ErrRejected)),
		ingestion.WithSyncMetrics(e.metrics),
		ingestion.WithSyncLogger(e.logger),
	)
	if err != nil {
		return nil, err
	}

	base := []ingestion.Option{
		ingestion.WithPoolSize(cfg.Pipeline.Workers),
		ingestion.WithLogger(e.logger),
		ingestion.WithFetchRetry(cfg.RetryPolicy()),
		ingestion.WithMinContentLength(cfg.Pipeline.MinContentLength),
	}
	return ingestion.NewPipeline(ingestion.Dependencies{
		SourceName:   cfg.Corpus,
		Catalog:      catalog,
		Fetcher:      fetcher,
		Preparer:     preparer,
		Chunker:      chunker,
		Batcher:      batcher,
		Synchronizer: syncer,
		Runs:         e.runs,
		Metrics:      e.metrics,
	}, append(base, opts...)...)
}

// NewReconciler creates a reconciler over the point store.
func (e *Engine) NewReconciler(opts ...reconcile.Option) (*reconcile.Reconciler, error) {
	base := []reconcile.Option{
		reconcile.WithDeleteBatchSize(e.cfg.Reconcile.DeleteBatchSize),
		reconcile.WithPause(e.cfg.Reconcile.Pause),
		reconcile.WithPageSize(e.cfg.Reconcile.PageSize),
		reconcile.WithMetrics(e.metrics),
		reconcile.WithLogger(e.logger),
	}
	return reconcile.New(e.store, append(base, opts...)...)
}

// KnownSources returns the sequence keys the catalog lists.
func (e *Engine) KnownSources(ctx context.Context) ([]string, error) {
	catalog, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = d.SequenceKey
	}
	return keys, nil
}

// Status summarizes the store and the most recent run of the corpus.
type Status struct {
	Corpus       string
	CorpusPoints int
	TotalPoints  int
	LastRun      *core.RunRecord
}

// Status counts stored points and loads the last run.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	corpus, err := e.store.Count(ctx, storage.Filter{SourceName: e.cfg.Corpus})
	if err != nil {
		return nil, fmt.Errorf("count corpus points: %w", err)
	}
	total, err := e.store.Count(ctx, storage.Filter{})
	if err != nil {
		return nil, fmt.Errorf("count points: %w", err)
	}
	last, err := e.runs.LastRun(ctx, e.cfg.Corpus)
	if err != nil {
		return nil, fmt.Errorf("load last run: %w", err)
	}
	return &Status{Corpus: e.cfg.Corpus, CorpusPoints: corpus, TotalPoints: total, LastRun: last}, nil
}

// Close writes the metrics textfile when configured and releases every
// resource the engine opened.
func (e *Engine) Close() error {
	var errs []error
	if path := e.cfg.Metrics.Textfile; path != "" {
		if err := e.metrics.WriteTextfile(path); err != nil {
			e.logger.Error("error writing metrics textfile", "path", path, "err", err)
			errs = append(errs, err)
		}
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing embedding provider", "err", err)
		}
	}
	if err := e.store.Close(); err != nil {
		e.logger.Error("error closing point store", "err", err)
		errs = append(errs, err)
	}
	if err := e.backend.Close(); err != nil {
		e.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
