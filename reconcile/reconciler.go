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


package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/chronicle/core"
	"github.com/poiesic/chronicle/metrics"
	"github.com/poiesic/chronicle/storage"
	"golang.org/x/time/rate"
)

const (
	// DefaultDeleteBatchSize is the number of ids removed per delete call.
	DefaultDeleteBatchSize = 100
	// DefaultPause separates consecutive delete calls.
	DefaultPause = 500 * time.Millisecond
)

// Deletion reasons reported to metrics.
const (
	reasonDuplicate = "duplicate"
	reasonOrphan    = "orphan"
	reasonPurge     = "purge"
)

// Reconciler finds and removes anomalous points: duplicates left by an
// identifier scheme change, orphans of sources no longer in the catalog, and
// whole sources or corpora on operator request.
type Reconciler struct {
	store       storage.PointStore
	deleteBatch int
	pause       time.Duration
	pageSize    int
	metrics     *metrics.Recorder
	logger      *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler) error

// WithDeleteBatchSize sets how many ids go into one delete call.
func WithDeleteBatchSize(size int) Option {
	return func(r *Reconciler) error {
		if size <= 0 {
			return fmt.Errorf("delete batch size must be greater than 0, got %d", size)
		}
		r.deleteBatch = size
		return nil
	}
}

// WithPause sets the minimum spacing between delete calls. Zero disables it.
func WithPause(pause time.Duration) Option {
	return func(r *Reconciler) error {
		if pause < 0 {
			pause = 0
		}
		r.pause = pause
		return nil
	}
}

// WithPageSize sets the scroll page size used by scans.
func WithPageSize(size int) Option {
	return func(r *Reconciler) error {
		if size <= 0 {
			return fmt.Errorf("page size must be greater than 0, got %d", size)
		}
		r.pageSize = size
		return nil
	}
}

// WithMetrics records deleted points.
func WithMetrics(recorder *metrics.Recorder) Option {
	return func(r *Reconciler) error {
		r.metrics = recorder
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// New creates a Reconciler over store.
func New(store storage.PointStore, opts ...Option) (*Reconciler, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	r := &Reconciler{
		store:       store,
		deleteBatch: DefaultDeleteBatchSize,
		pause:       DefaultPause,
		pageSize:    storage.DefaultPageSize,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "reconciler")
	return r, nil
}

// DuplicateGroup is a (sequence key, position) held by more than one point.
// IDs are in scan order; the first is the one cleanup keeps.
type DuplicateGroup struct {
	SequenceKey string
	Position    int
	IDs         []string
}

// DuplicateReport lists the duplicate groups of a corpus.
type DuplicateReport struct {
	SourceName string
	Scanned    int
	// Unkeyed counts points with no sequence key. They are never grouped.
	Unkeyed int
	Groups  []DuplicateGroup
}

// Redundant returns how many points cleanup would delete.
func (r *DuplicateReport) Redundant() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.IDs) - 1
	}
	return n
}

// CleanupResult summarizes a delete pass.
type CleanupResult struct {
	Groups  int
	Kept    int
	Deleted int
	Batches int
}

// ScanDuplicates groups the points of a corpus by (sequence key, position) and
// reports every group with more than one id.
func (r *Reconciler) ScanDuplicates(ctx context.Context, sourceName string) (*DuplicateReport, error) {
	if sourceName == "" {
		return nil, ErrSourceNameRequired
	}
	report := &DuplicateReport{SourceName: sourceName}
	if err := r.scanDuplicates(ctx, storage.Filter{SourceName: sourceName}, report); err != nil {
		return nil, err
	}
	r.logger.Info("duplicate scan finished", "source", sourceName, "stage", "scan",
		"scanned", report.Scanned, "groups", len(report.Groups), "unkeyed", report.Unkeyed)
	return report, nil
}

func (r *Reconciler) scanDuplicates(ctx context.Context, filter storage.Filter, report *DuplicateReport) error {
	type slot struct {
		sequenceKey string
		position    int
	}
	groups := make(map[slot][]string)
	var order []slot

	err := storage.ScrollAll(ctx, r.store, filter, r.pageSize, func(p core.Point) error {
		report.Scanned++
		if p.Segment.Metadata.SequenceKey == "" {
			report.Unkeyed++
			r.logger.Warn("point has no sequence key, leaving it alone", "source", filter.SourceName,
				"stage", "scan", "point", p.ID)
			return nil
		}
		key := slot{p.Segment.Metadata.SequenceKey, p.Segment.Position}
		ids, seen := groups[key]
		if !seen {
			order = append(order, key)
		}
		if !slices.Contains(ids, p.ID) {
			groups[key] = append(ids, p.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", filter.SourceName, err)
	}

	for _, key := range order {
		if ids := groups[key]; len(ids) > 1 {
			report.Groups = append(report.Groups, DuplicateGroup{
				SequenceKey: key.sequenceKey,
				Position:    key.position,
				IDs:         ids,
			})
		}
	}
	return nil
}

// CleanDuplicates keeps the first point of every duplicate group and deletes
// the rest. With sequence keys, only those sources are scanned. Finding no
// duplicates is a success.
func (r *Reconciler) CleanDuplicates(ctx context.Context, sourceName string, sequenceKeys ...string) (*CleanupResult, error) {
	if sourceName == "" {
		return nil, ErrSourceNameRequired
	}
	report := &DuplicateReport{SourceName: sourceName}
	if len(sequenceKeys) == 0 {
		if err := r.scanDuplicates(ctx, storage.Filter{SourceName: sourceName}, report); err != nil {
			return nil, err
		}
	}
	for _, key := range sequenceKeys {
		filter := storage.Filter{SourceName: sourceName, SequenceKey: key}
		if err := r.scanDuplicates(ctx, filter, report); err != nil {
			return nil, err
		}
	}

	result := &CleanupResult{Groups: len(report.Groups)}
	if len(report.Groups) == 0 {
		r.logger.Info("no duplicates found", "source", sourceName, "stage", "clean")
		return result, nil
	}

	var doomed []string
	for _, g := range report.Groups {
		result.Kept++
		doomed = append(doomed, g.IDs[1:]...)
	}
	deleted, batches, err := r.deleteIDs(ctx, doomed, reasonDuplicate)
	result.Deleted, result.Batches = deleted, batches
	if err != nil {
		return result, err
	}
	r.logger.Info("duplicates removed", "source", sourceName, "stage", "clean",
		"groups", result.Groups, "deleted", result.Deleted)
	return result, nil
}

// OrphanSource is a sequence key with stored points but no catalog entry.
type OrphanSource struct {
	SequenceKey string
	IDs         []string
}

// OrphanReport lists orphaned sources in scan order.
type OrphanReport struct {
	SourceName string
	Scanned    int
	// Unkeyed counts points with no sequence key. They are never orphans.
	Unkeyed int
	Sources []OrphanSource
}

// Points returns the total number of orphaned points.
func (r *OrphanReport) Points() int {
	n := 0
	for _, s := range r.Sources {
		n += len(s.IDs)
	}
	return n
}

// ScanOrphans reports stored points whose sequence key is not in known.
func (r *Reconciler) ScanOrphans(ctx context.Context, sourceName string, known []string) (*OrphanReport, error) {
	if sourceName == "" {
		return nil, ErrSourceNameRequired
	}
	if len(known) == 0 {
		return nil, ErrEmptyCatalog
	}
	catalog := make(map[string]bool, len(known))
	for _, k := range known {
		catalog[k] = true
	}

	report := &OrphanReport{SourceName: sourceName}
	index := make(map[string]int)
	err := storage.ScrollAll(ctx, r.store, storage.Filter{SourceName: sourceName}, r.pageSize, func(p core.Point) error {
		report.Scanned++
		key := p.Segment.Metadata.SequenceKey
		if key == "" {
			report.Unkeyed++
			r.logger.Warn("point has no sequence key, leaving it alone", "source", sourceName,
				"stage", "scan", "point", p.ID)
			return nil
		}
		if catalog[key] {
			return nil
		}
		i, ok := index[key]
		if !ok {
			i = len(report.Sources)
			index[key] = i
			report.Sources = append(report.Sources, OrphanSource{SequenceKey: key})
		}
		report.Sources[i].IDs = append(report.Sources[i].IDs, p.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", sourceName, err)
	}
	r.logger.Info("orphan scan finished", "source", sourceName, "stage", "scan",
		"scanned", report.Scanned, "orphaned_sources", len(report.Sources), "unkeyed", report.Unkeyed)
	return report, nil
}

// CleanOrphans deletes every point whose sequence key is not in known.
func (r *Reconciler) CleanOrphans(ctx context.Context, sourceName string, known []string) (*CleanupResult, error) {
	report, err := r.ScanOrphans(ctx, sourceName, known)
	if err != nil {
		return nil, err
	}
	result := &CleanupResult{Groups: len(report.Sources)}
	var doomed []string
	for _, s := range report.Sources {
		doomed = append(doomed, s.IDs...)
	}
	result.Deleted, result.Batches, err = r.deleteIDs(ctx, doomed, reasonOrphan)
	return result, err
}

// PurgeSource deletes every point of one source.
func (r *Reconciler) PurgeSource(ctx context.Context, sourceName, sequenceKey string) (int, error) {
	if sourceName == "" {
		return 0, ErrSourceNameRequired
	}
	if sequenceKey == "" {
		return 0, ErrSequenceKeyRequired
	}
	return r.purge(ctx, storage.Filter{SourceName: sourceName, SequenceKey: sequenceKey})
}

// ConfirmationToken returns the exact text an operator must type to purge a corpus.
func ConfirmationToken(sourceName string) string {
	return "DELETE " + strings.ToUpper(sourceName)
}

// PurgeCorpus deletes every point of a corpus. The confirmation must equal
// ConfirmationToken(sourceName); otherwise nothing is read or deleted.
func (r *Reconciler) PurgeCorpus(ctx context.Context, sourceName, confirmation string) (int, error) {
	if sourceName == "" {
		return 0, ErrSourceNameRequired
	}
	if expected := ConfirmationToken(sourceName); confirmation != expected {
		r.logger.Warn("corpus purge cancelled", "source", sourceName, "stage", "purge")
		return 0, &ConfirmationMismatchError{SourceName: sourceName, Expected: expected, Got: confirmation}
	}
	return r.purge(ctx, storage.Filter{SourceName: sourceName})
}

func (r *Reconciler) purge(ctx context.Context, filter storage.Filter) (int, error) {
	var ids []string
	err := storage.ScrollAll(ctx, r.store, filter, r.pageSize, func(p core.Point) error {
		ids = append(ids, p.ID)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", filter.SourceName, err)
	}
	deleted, _, err := r.deleteIDs(ctx, ids, reasonPurge)
	r.logger.Info("purged", "source", filter.SourceName, "sequence", filter.SequenceKey,
		"stage", "purge", "deleted", deleted)
	return deleted, err
}

// deleteIDs removes ids in batches spaced by the configured pause. It returns
// how many were deleted before any error.
func (r *Reconciler) deleteIDs(ctx context.Context, ids []string, reason string) (int, int, error) {
	limit := rate.Inf
	if r.pause > 0 {
		limit = rate.Every(r.pause)
	}
	limiter := rate.NewLimiter(limit, 1)

	deleted, batches := 0, 0
	for offset := 0; offset < len(ids); offset += r.deleteBatch {
		if err := limiter.Wait(ctx); err != nil {
			return deleted, batches, err
		}
		end := min(offset+r.deleteBatch, len(ids))
		if err := r.store.Delete(ctx, ids[offset:end]); err != nil {
			return deleted, batches, fmt.Errorf("delete batch %d: %w", batches, err)
		}
		batches++
		deleted += end - offset
		r.metrics.PointsDeleted(reason, end-offset)
		r.logger.Debug("deleted batch", "reason", reason, "batch", batches, "size", end-offset)
	}
	return deleted, batches, nil
}
