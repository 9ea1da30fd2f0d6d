package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chronicle"

// Recorder collects ingestion and maintenance counters on a private registry.
// All methods are safe on a nil *Recorder, which records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	sources         *prometheus.CounterVec
	segments        prometheus.Counter
	embeddings      *prometheus.CounterVec
	storeWrites     *prometheus.CounterVec
	pointsDeleted   *prometheus.CounterVec
	runDuration     prometheus.Histogram
	lastRunFinished prometheus.Gauge
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		sources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_total",
			Help:      "Sources processed by outcome",
		}, []string{"outcome"}),
		segments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_written_total",
			Help:      "Segments written to the vector store",
		}),
		embeddings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_batches_total",
			Help:      "Embedding batches by status",
		}, []string{"status"}),
		storeWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Vector store upsert batches by status",
		}, []string{"status"}),
		pointsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_deleted_total",
			Help:      "Points deleted by reason",
		}, []string{"reason"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of ingestion runs",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		lastRunFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_finished_timestamp_seconds",
			Help:      "Unix time the last ingestion run finished",
		}),
	}

	r.registry.MustRegister(
		r.sources,
		r.segments,
		r.embeddings,
		r.storeWrites,
		r.pointsDeleted,
		r.runDuration,
		r.lastRunFinished,
	)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Source records the outcome of one source: "succeeded", "skipped" or "failed".
func (r *Recorder) Source(outcome string) {
	if r == nil {
		return
	}
	r.sources.WithLabelValues(outcome).Inc()
}

// SegmentsWritten adds n written segments.
func (r *Recorder) SegmentsWritten(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.segments.Add(float64(n))
}

// EmbeddingBatch records one embedding batch.
func (r *Recorder) EmbeddingBatch(ok bool) {
	if r == nil {
		return
	}
	r.embeddings.WithLabelValues(status(ok)).Inc()
}

// StoreWrite records one upsert batch.
func (r *Recorder) StoreWrite(ok bool) {
	if r == nil {
		return
	}
	r.storeWrites.WithLabelValues(status(ok)).Inc()
}

// PointsDeleted adds n deleted points under reason, e.g. "duplicate" or "orphan".
func (r *Recorder) PointsDeleted(reason string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.pointsDeleted.WithLabelValues(reason).Add(float64(n))
}

// RunFinished records the duration and completion time of a run.
func (r *Recorder) RunFinished(started, finished time.Time) {
	if r == nil {
		return
	}
	r.runDuration.Observe(finished.Sub(started).Seconds())
	r.lastRunFinished.Set(float64(finished.Unix()))
}

// WriteTextfile writes the current metrics in text exposition format to path,
// for collection by a node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
