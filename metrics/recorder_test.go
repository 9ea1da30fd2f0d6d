package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Source("succeeded")
		r.SegmentsWritten(3)
		r.EmbeddingBatch(true)
		r.StoreWrite(false)
		r.PointsDeleted("orphan", 2)
		r.RunFinished(time.Now(), time.Now())
	})
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile("/nonexistent/path"))
}

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.Source("succeeded")
	r.Source("succeeded")
	r.Source("failed")
	r.SegmentsWritten(5)
	r.SegmentsWritten(0)
	r.EmbeddingBatch(true)
	r.EmbeddingBatch(false)
	r.PointsDeleted("duplicate", 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.sources.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sources.WithLabelValues("failed")))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.segments))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.embeddings.WithLabelValues("error")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.pointsDeleted.WithLabelValues("duplicate")))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.SegmentsWritten(7)
	start := time.Now().Add(-2 * time.Second)
	r.RunFinished(start, time.Now())

	path := filepath.Join(t.TempDir(), "chronicle.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.True(t, strings.Contains(out, "chronicle_segments_written_total 7"))
	assert.True(t, strings.Contains(out, "chronicle_run_duration_seconds_count 1"))
}
