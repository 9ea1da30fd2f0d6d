package ingestion

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/poiesic/chronicle/core"
)

// RunReport accumulates the outcome of one ingestion run. Counters may be
// updated from several workers at once.
type RunReport struct {
	ID         string
	SourceName string
	Force      bool
	StartedAt  time.Time
	FinishedAt time.Time

	attempted atomic.Int64
	succeeded atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	segments  atomic.Int64
	repaired  atomic.Int64
	missing   atomic.Int64

	mu       sync.Mutex
	failures []core.SourceFailure
}

func newRunReport(sourceName string, force bool, started time.Time) *RunReport {
	return &RunReport{
		ID:         core.NewRunID(),
		SourceName: sourceName,
		Force:      force,
		StartedAt:  started,
	}
}

func (r *RunReport) attempt() { r.attempted.Add(1) }

func (r *RunReport) skip() { r.skipped.Add(1) }

func (r *RunReport) succeed(segments int) {
	r.succeeded.Add(1)
	r.segments.Add(int64(segments))
}

func (r *RunReport) repair() { r.repaired.Add(1) }

func (r *RunReport) missingEmbeddings(n int) { r.missing.Add(int64(n)) }

func (r *RunReport) fail(doc core.SourceDocument, stage string, err error) {
	r.failed.Add(1)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, core.SourceFailure{
		SequenceKey: doc.SequenceKey,
		DocumentKey: doc.DocumentKey,
		Stage:       stage,
		Reason:      err.Error(),
	})
}

// Attempted returns the number of sources the run started processing.
func (r *RunReport) Attempted() int { return int(r.attempted.Load()) }

// Succeeded returns the number of sources written to the store.
func (r *RunReport) Succeeded() int { return int(r.succeeded.Load()) }

// Skipped returns the number of sources already present in the store.
func (r *RunReport) Skipped() int { return int(r.skipped.Load()) }

// Failed returns the number of sources that did not make it into the store.
func (r *RunReport) Failed() int { return int(r.failed.Load()) }

// Segments returns the number of segments written.
func (r *RunReport) Segments() int { return int(r.segments.Load()) }

// Repaired returns the number of sources reprocessed because their stored
// copy was partial or held zero-filled vectors.
func (r *RunReport) Repaired() int { return int(r.repaired.Load()) }

// EmbeddingMissing returns the number of segments stored with a zero-filled
// vector in this run. Their sources are reprocessed by the next run.
func (r *RunReport) EmbeddingMissing() int { return int(r.missing.Load()) }

// Failures returns the failures sorted by sequence key.
func (r *RunReport) Failures() []core.SourceFailure {
	r.mu.Lock()
	out := slices.Clone(r.failures)
	r.mu.Unlock()
	slices.SortStableFunc(out, func(a, b core.SourceFailure) int {
		switch {
		case a.SequenceKey < b.SequenceKey:
			return -1
		case a.SequenceKey > b.SequenceKey:
			return 1
		}
		return 0
	})
	return out
}

// Record converts the report into the persisted form.
func (r *RunReport) Record() *core.RunRecord {
	return &core.RunRecord{
		ID:         r.ID,
		SourceName: r.SourceName,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Force:      r.Force,
		Attempted:  r.Attempted(),
		Succeeded:  r.Succeeded(),
		Skipped:    r.Skipped(),
		Failed:     r.Failed(),
		Segments:   r.Segments(),
		Failures:   r.Failures(),
	}
}
