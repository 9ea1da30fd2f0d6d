package ingestion

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_ReportsEveryInterval(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 4, 2)
	tracker.Start()

	tracker.Done()
	assert.Empty(t, buf.String())

	tracker.Done()
	assert.Contains(t, buf.String(), "Sources: 2/4 (50.0%)")

	tracker.Done()
	tracker.Done()
	assert.Contains(t, buf.String(), "Sources: 4/4 (100.0%)")
}

func TestProgressTracker_CapsAtTotal(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 1, 1)
	tracker.Start()

	tracker.Done()
	tracker.Done()
	assert.NotContains(t, buf.String(), "2/1")
}

func TestProgressTracker_Finish(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 0, 0)
	tracker.Start()
	assert.GreaterOrEqual(t, tracker.Elapsed().Nanoseconds(), int64(0))

	tracker.Finish()
	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Contains(t, out, "Sources: 0/0 (100.0%)")
	assert.Zero(t, tracker.Elapsed())
}

func TestProgressTracker_IgnoresUpdatesBeforeStart(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewProgressTracker(&buf, 3, 1)

	tracker.Done()
	tracker.Finish()
	assert.Empty(t, buf.String())
}
