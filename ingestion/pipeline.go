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


package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/chronicle/chunking"
	"github.com/poiesic/chronicle/core"
	"github.com/poiesic/chronicle/embedding"
	"github.com/poiesic/chronicle/metadata"
	"github.com/poiesic/chronicle/metrics"
	"github.com/poiesic/chronicle/retry"
	"github.com/poiesic/chronicle/source"
	"github.com/poiesic/chronicle/storage"
)

// DefaultMinContentLength is the shortest extracted transcript, in characters,
// that is worth indexing.
const DefaultMinContentLength = 100

// Source outcomes reported to metrics.
const (
	outcomeSucceeded = "succeeded"
	outcomeSkipped   = "skipped"
	outcomeFailed    = "failed"
)

// Dependencies are the components a Pipeline drives. Runs and Metrics are optional.
type Dependencies struct {
	SourceName   string
	Catalog      source.Catalog
	Fetcher      source.Fetcher
	Preparer     *metadata.Preparer
	Chunker      *chunking.Chunker
	Batcher      *embedding.Batcher
	Synchronizer *Synchronizer
	Runs         storage.RunRepository
	Metrics      *metrics.Recorder
}

// Pipeline turns the documents of one corpus into stored points.
type Pipeline struct {
	deps       Dependencies
	pool       *ants.Pool
	fetchRetry retry.Policy
	minLength  int
	progress   io.Writer
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets how many sources are processed at once. Default is 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithFetchRetry sets the retry policy for document fetches. Missing and
// forbidden documents are never retried.
func WithFetchRetry(policy retry.Policy) Option {
	return func(p *Pipeline) error {
		if err := policy.Validate(); err != nil {
			return err
		}
		p.fetchRetry = policy.WithPermanent(source.Permanent...)
		return nil
	}
}

// WithMinContentLength sets the minimum extracted length in characters.
func WithMinContentLength(n int) Option {
	return func(p *Pipeline) error {
		if n < 0 {
			return fmt.Errorf("minimum content length must not be negative, got %d", n)
		}
		p.minLength = n
		return nil
	}
}

// WithProgress prints per-source progress to w.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) error {
		p.progress = w
		return nil
	}
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(deps Dependencies, opts ...Option) (*Pipeline, error) {
	switch {
	case deps.SourceName == "":
		return nil, ErrSourceNameRequired
	case deps.Catalog == nil:
		return nil, ErrCatalogRequired
	case deps.Fetcher == nil:
		return nil, ErrFetcherRequired
	case deps.Preparer == nil:
		return nil, ErrPreparerRequired
	case deps.Chunker == nil:
		return nil, ErrChunkerRequired
	case deps.Batcher == nil:
		return nil, ErrBatcherRequired
	case deps.Synchronizer == nil:
		return nil, ErrSynchronizerRequired
	}

	pool, err := ants.NewPool(1)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		deps:       deps,
		pool:       pool,
		fetchRetry: retry.Default().WithPermanent(source.Permanent...),
		minLength:  DefaultMinContentLength,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "pipeline", "source", deps.SourceName)
	return p, nil
}

// RunOptions select what a run processes.
type RunOptions struct {
	// Force reprocesses sources that already have points in the store.
	Force bool
	// Sources limits the run to these sequence keys.
	Sources []string
	// RetryFailed limits the run to the sources that failed in the previous run.
	// Combined with Sources, the union is processed.
	RetryFailed bool
}

// Run processes every selected source of the corpus. A failing source is
// recorded in the report and never stops the run; the returned error is
// reserved for catalog failures, cancellation and run persistence.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	report := newRunReport(p.deps.SourceName, opts.Force, time.Now().UTC())
	logger := p.logger.With("run", report.ID)

	docs, err := p.deps.Catalog.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}

	wanted, retried, err := p.selection(ctx, opts)
	if err != nil {
		return nil, err
	}
	if wanted != nil {
		for _, key := range missingKeys(docs, wanted) {
			doc := core.SourceDocument{SourceName: p.deps.SourceName, SequenceKey: key}
			report.attempt()
			p.failed(logger, report, doc, StageCatalog, ErrNotInCatalog)
		}
		docs = source.Filter(docs, wanted)
		if len(wanted) == 0 {
			docs = nil
		}
	}

	logger.Info("starting run", "sources", len(docs), "force", opts.Force, "retry_failed", opts.RetryFailed)

	var tracker *ProgressTracker
	if p.progress != nil {
		tracker = NewProgressTracker(p.progress, len(docs), 1)
		tracker.Start()
	}

	var wg sync.WaitGroup
	for _, doc := range docs {
		report.attempt()
		wg.Add(1)
		submitErr := p.pool.Submit(func() {
			defer wg.Done()
			p.process(ctx, logger, report, doc, opts.Force || retried[doc.SequenceKey])
			if tracker != nil {
				tracker.Done()
			}
		})
		if submitErr != nil {
			wg.Done()
			p.failed(logger, report, doc, StageSchedule, submitErr)
		}
	}
	wg.Wait()
	if tracker != nil {
		tracker.Finish()
	}

	report.FinishedAt = time.Now().UTC()
	p.deps.Metrics.RunFinished(report.StartedAt, report.FinishedAt)
	logger.Info("run finished",
		"attempted", report.Attempted(),
		"succeeded", report.Succeeded(),
		"skipped", report.Skipped(),
		"failed", report.Failed(),
		"segments", report.Segments(),
		"embedding_missing", report.EmbeddingMissing(),
		"duration", report.FinishedAt.Sub(report.StartedAt))

	if p.deps.Runs != nil {
		// Saved even when cancelled so the next run can retry what is missing.
		if saveErr := p.deps.Runs.SaveRun(context.WithoutCancel(ctx), report.Record()); saveErr != nil {
			return report, fmt.Errorf("save run %s: %w", report.ID, saveErr)
		}
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// selection returns the sequence keys to process, or nil for the whole
// catalog, and the keys that failed in the previous run. Those are reprocessed
// even when their stored points look complete.
func (p *Pipeline) selection(ctx context.Context, opts RunOptions) ([]string, map[string]bool, error) {
	if !opts.RetryFailed {
		if len(opts.Sources) == 0 {
			return nil, nil, nil
		}
		return dedupe(opts.Sources), nil, nil
	}
	if p.deps.Runs == nil {
		return nil, nil, ErrRunsRequired
	}
	last, err := p.deps.Runs.LastRun(ctx, p.deps.SourceName)
	if err != nil {
		return nil, nil, fmt.Errorf("load last run: %w", err)
	}
	keys := slices.Clone(opts.Sources)
	retried := make(map[string]bool)
	if last != nil {
		for _, key := range last.FailedSequenceKeys() {
			retried[key] = true
			keys = append(keys, key)
		}
	}
	return dedupe(keys), retried, nil
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, report *RunReport, doc core.SourceDocument, force bool) {
	if err := ctx.Err(); err != nil {
		p.failed(logger, report, doc, StageSchedule, err)
		return
	}

	if !force {
		pres, err := p.deps.Synchronizer.Inspect(ctx, doc.SourceName, doc.SequenceKey)
		if err != nil {
			p.failed(logger, report, doc, StagePresence, err)
			return
		}
		if pres.Complete() {
			logger.Debug("already stored, skipping", "sequence", doc.SequenceKey)
			report.skip()
			p.deps.Metrics.Source(outcomeSkipped)
			return
		}
		if pres.Stored > 0 {
			logger.Warn("stored copy incomplete, reprocessing", "sequence", doc.SequenceKey,
				"stored", pres.Stored, "expected", pres.Expected, "missing_embeddings", pres.MissingEmbeddings)
			report.repair()
		}
	}

	var raw string
	err := p.fetchRetry.Do(ctx, func(ctx context.Context) error {
		var fetchErr error
		raw, fetchErr = p.deps.Fetcher.Fetch(ctx, doc.DocumentKey)
		return fetchErr
	})
	if err != nil {
		p.failed(logger, report, doc, StageFetch,
			&SourceFetchError{SequenceKey: doc.SequenceKey, DocumentKey: doc.DocumentKey, Err: err})
		return
	}

	text := source.ExtractTranscript(raw)
	if n := utf8.RuneCountInString(text); n < p.minLength || n == 0 {
		p.failed(logger, report, doc, StageExtract,
			&EmptyContentError{SequenceKey: doc.SequenceKey, Length: n, Minimum: p.minLength})
		return
	}

	meta, err := p.deps.Preparer.Prepare(doc)
	if err != nil {
		p.failed(logger, report, doc, StagePrepare, err)
		return
	}

	segments, err := p.deps.Chunker.Split(text, meta)
	if err != nil {
		p.failed(logger, report, doc, StageChunk, err)
		return
	}
	core.AssignIDs(segments)

	texts := make([]string, len(segments))
	for i := range segments {
		texts[i] = segments[i].Content
	}
	embedded, err := p.deps.Batcher.Embed(ctx, texts)
	if err != nil {
		p.failed(logger, report, doc, StageEmbed, err)
		return
	}
	if len(embedded.Missing) > 0 {
		report.missingEmbeddings(len(embedded.Missing))
		logger.Warn("stored with zero-filled vectors", "sequence", doc.SequenceKey, "stage", StageEmbed, "missing", len(embedded.Missing))
	}

	points := make([]core.Point, len(segments))
	for i := range segments {
		points[i] = core.Point{ID: segments[i].ID, Vector: embedded.Vectors[i], Segment: segments[i]}
	}
	for _, i := range embedded.Missing {
		points[i].EmbeddingMissing = true
	}

	synced, err := p.deps.Synchronizer.Sync(ctx, points)
	if err != nil {
		p.failed(logger, report, doc, StageStore, err)
		return
	}

	report.succeed(synced.Written)
	p.deps.Metrics.Source(outcomeSucceeded)
	p.deps.Metrics.SegmentsWritten(synced.Written)
	logger.Info("source stored", "sequence", doc.SequenceKey, "segments", synced.Written, "pruned", synced.Pruned)
}

func (p *Pipeline) failed(logger *slog.Logger, report *RunReport, doc core.SourceDocument, stage string, err error) {
	report.fail(doc, stage, err)
	p.deps.Metrics.Source(outcomeFailed)
	level := slog.LevelError
	if errors.Is(err, context.Canceled) {
		level = slog.LevelWarn
	}
	logger.Log(context.Background(), level, "source failed",
		"sequence", doc.SequenceKey, "stage", stage, "err", err)
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

func dedupe(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func missingKeys(docs []core.SourceDocument, keys []string) []string {
	known := make(map[string]bool, len(docs))
	for _, d := range docs {
		known[d.SequenceKey] = true
	}
	var missing []string
	for _, k := range keys {
		if !known[k] {
			missing = append(missing, k)
		}
	}
	return missing
}
