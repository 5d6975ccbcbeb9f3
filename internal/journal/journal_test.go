// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestBeginFinishGet(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	require.NoError(t, j.Check(ctx))

	started := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	run := model.RunInfo{ID: "run-1", Design: "hdr", Length: 3, Processing: model.ProcessingFast, Expected: 6, StartedAt: started}
	id, err := j.Begin(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, "run-1", id)

	got, err := j.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
	assert.Equal(t, started, got.StartedAt)
	assert.Nil(t, got.FinishedAt)
	assert.Equal(t, "fast", got.Processing)

	require.NoError(t, j.Finish(ctx, model.CorrelationReport{
		Run:              run,
		Pairs:            5,
		UnmatchedBuffers: []model.FrameID{9},
		TimedOut:         true,
	}))
	got, err = j.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, got.Status)
	assert.Equal(t, 5, got.Pairs)
	assert.Equal(t, 1, got.UnmatchedBuffers)
	assert.True(t, got.TimedOut)
	require.NotNil(t, got.FinishedAt)
	assert.NotEmpty(t, got.Error)

	// A late Begin does not reset a finished run.
	_, err = j.Begin(ctx, run)
	require.NoError(t, err)
	got, err = j.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, got.Status)

	_, err = j.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFinishWithoutBegin(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	Recorder{J: j}.OnAllPairsReported(model.CorrelationReport{Run: model.RunInfo{ID: "r", Design: "d", Length: 1}, Aborted: true})

	got, err := j.Get(ctx, "r")
	require.NoError(t, err)
	assert.Equal(t, StatusAborted, got.Status)
	assert.False(t, got.TimedOut)
}

func TestBeginAssignsID(t *testing.T) {
	j := openJournal(t)
	id, err := j.Begin(context.Background(), model.RunInfo{Design: "d", Length: 1})
	require.NoError(t, err)
	_, err = uuid.Parse(id)
	require.NoError(t, err)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	j := openJournal(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		_, err := j.Begin(ctx, model.RunInfo{ID: id, Design: "d", Length: 1, StartedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	runs, err := j.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	runs, err = j.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}
