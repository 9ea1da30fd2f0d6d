package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/chronicle/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunRepository(t *testing.T) {
	_, runs, backend, err := NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()
	ctx := context.Background()

	last, err := runs.LastRun(ctx, "revolutions")
	require.NoError(t, err)
	assert.Nil(t, last)

	started := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	first := &core.RunRecord{ID: "0001", SourceName: "revolutions", StartedAt: started, Attempted: 3, Succeeded: 3}
	second := &core.RunRecord{
		ID:         "0002",
		SourceName: "revolutions",
		StartedAt:  started.Add(time.Hour),
		Attempted:  2,
		Failed:     1,
		Failures:   []core.SourceFailure{{SequenceKey: "1.3", Stage: "fetch", Reason: "not found"}},
	}
	other := &core.RunRecord{ID: "0003", SourceName: "history_of_rome", StartedAt: started}

	require.NoError(t, runs.SaveRun(ctx, first))
	require.NoError(t, runs.SaveRun(ctx, second))
	require.NoError(t, runs.SaveRun(ctx, other))

	last, err = runs.LastRun(ctx, "revolutions")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "0002", last.ID)
	assert.Equal(t, []string{"1.3"}, last.FailedSequenceKeys())

	list, err := runs.ListRuns(ctx, "revolutions", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "0002", list[0].ID)
	assert.Equal(t, "0001", list[1].ID)

	list, err = runs.ListRuns(ctx, "revolutions", 1)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestRunRepository_AssignsID(t *testing.T) {
	_, runs, backend, err := NewMemoryStores()
	require.NoError(t, err)
	defer backend.Close()

	run := &core.RunRecord{SourceName: "revolutions"}
	require.NoError(t, runs.SaveRun(context.Background(), run))
	assert.NotEmpty(t, run.ID)
}
