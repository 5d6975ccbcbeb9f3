// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package correlator

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/metrics"
)

type recordingHandler struct {
	mu      sync.Mutex
	pairs   []model.Pair
	reports []model.CorrelationReport
}

func (h *recordingHandler) OnPairAvailable(_ model.RunInfo, p model.Pair) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pairs = append(h.pairs, p)
}

func (h *recordingHandler) OnAllPairsReported(r model.CorrelationReport) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, r)
}

func md(id int64) model.FrameMetadata { return model.FrameMetadata{FrameID: model.FrameID(id)} }

func buf(id int64, target string) model.FrameBuffer {
	return model.FrameBuffer{FrameID: model.FrameID(id), Target: model.TargetID(target)}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestOutOfOrderDeliveryPairsEverything(t *testing.T) {
	c := New()
	require.NoError(t, c.Begin(model.RunInfo{ID: "r1", Length: 3, Expected: 6}))

	require.NoError(t, c.RecordBuffer(buf(30, "jpeg")))
	require.NoError(t, c.RecordMetadata(md(10)))
	require.NoError(t, c.RecordBuffer(buf(10, "jpeg")))
	require.NoError(t, c.RecordMetadata(md(30)))
	require.NoError(t, c.RecordBuffer(buf(20, "jpeg")))
	require.NoError(t, c.RecordMetadata(md(20)))

	assert.False(t, c.AwaitCompletion(context.Background(), time.Second))

	h := &recordingHandler{}
	report, err := c.Match(h)
	require.NoError(t, err)

	require.Len(t, h.pairs, 3)
	for i, want := range []model.FrameID{10, 20, 30} {
		assert.Equal(t, want, h.pairs[i].Metadata.FrameID)
		assert.Equal(t, want, h.pairs[i].Buffer.FrameID)
	}
	require.Len(t, h.reports, 1)
	assert.Equal(t, 3, report.Pairs)
	assert.Empty(t, report.UnmatchedMetadata)
	assert.Empty(t, report.UnmatchedBuffers)
	assert.False(t, report.TimedOut)
	assert.False(t, c.Active())
}

func TestPartialDeliveryTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := New()
	require.NoError(t, c.Begin(model.RunInfo{ID: "r2", Length: 3, Expected: 6}))
	for _, id := range []int64{1, 2, 3} {
		require.NoError(t, c.RecordMetadata(md(id)))
	}
	for _, id := range []int64{1, 2} {
		require.NoError(t, c.RecordBuffer(buf(id, "yuv")))
	}
	assert.Equal(t, 1, c.Remaining())

	start := time.Now()
	timedOut := c.AwaitCompletion(context.Background(), 50*time.Millisecond)
	assert.True(t, timedOut)
	assert.Less(t, time.Since(start), 2*time.Second)

	h := &recordingHandler{}
	report, err := c.Match(h)
	require.NoError(t, err)
	assert.Len(t, h.pairs, 2)
	require.Len(t, h.reports, 1)
	assert.True(t, report.TimedOut)
	require.Len(t, report.UnmatchedMetadata, 1)
	assert.Equal(t, model.FrameID(3), report.UnmatchedMetadata[0].FrameID)

	_, err = c.Match(h)
	require.ErrorIs(t, err, ErrNoActiveRun)
	assert.Len(t, h.reports, 1)
}

func TestMultipleBuffersPerExposure(t *testing.T) {
	c := New()
	require.NoError(t, c.Begin(model.RunInfo{ID: "raw", Length: 2, Expected: 2 + 2*2}))

	for _, id := range []int64{5, 7} {
		require.NoError(t, c.RecordBuffer(buf(id, "raw")))
		require.NoError(t, c.RecordBuffer(buf(id, "jpeg")))
		require.NoError(t, c.RecordMetadata(md(id)))
	}
	assert.False(t, c.AwaitCompletion(context.Background(), time.Second))

	h := &recordingHandler{}
	report, err := c.Match(h)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Pairs)
	assert.Empty(t, report.UnmatchedMetadata)
	assert.Empty(t, report.UnmatchedBuffers)
}

func TestUnmatchedOnBothSides(t *testing.T) {
	pairs, leftMeta, leftBuf := pair(
		[]model.FrameMetadata{md(4), md(1), md(9)},
		[]model.FrameBuffer{buf(2, "a"), buf(9, "a"), buf(1, "a"), buf(12, "a")},
	)
	require.Len(t, pairs, 2)
	assert.Equal(t, model.FrameID(1), pairs[0].Metadata.FrameID)
	assert.Equal(t, model.FrameID(9), pairs[1].Metadata.FrameID)
	require.Len(t, leftMeta, 1)
	assert.Equal(t, model.FrameID(4), leftMeta[0].FrameID)
	require.Len(t, leftBuf, 2)
	assert.Equal(t, model.FrameID(2), leftBuf[0].FrameID)
	assert.Equal(t, model.FrameID(12), leftBuf[1].FrameID)
}

func TestConcurrentInterleavingsMatchAll(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	const m = 200
	rng := rand.New(rand.NewSource(42))
	ids := rng.Perm(m)

	c := New()
	require.NoError(t, c.Begin(model.RunInfo{ID: "concurrent", Length: m, Expected: 2 * m}))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, id := range ids {
			assert.NoError(t, c.RecordMetadata(md(int64(id)+1)))
		}
	}()
	go func() {
		defer wg.Done()
		for i := len(ids) - 1; i >= 0; i-- {
			assert.NoError(t, c.RecordBuffer(buf(int64(ids[i])+1, "yuv")))
		}
	}()

	assert.False(t, c.AwaitCompletion(context.Background(), 5*time.Second))
	wg.Wait()

	h := &recordingHandler{}
	report, err := c.Match(h)
	require.NoError(t, err)
	assert.Equal(t, m, report.Pairs)
	assert.Len(t, h.pairs, m)
}

func TestExtraEventsDoNotUnderflow(t *testing.T) {
	c := New()
	require.NoError(t, c.Begin(model.RunInfo{ID: "extra", Length: 1, Expected: 2}))
	require.NoError(t, c.RecordMetadata(md(1)))
	require.NoError(t, c.RecordBuffer(buf(1, "a")))
	require.NoError(t, c.RecordBuffer(buf(1, "b")))
	assert.Equal(t, 0, c.Remaining())
	assert.False(t, c.AwaitCompletion(context.Background(), time.Second))
}

func TestBeginWhileActive(t *testing.T) {
	c := New()
	require.NoError(t, c.Begin(model.RunInfo{ID: "a", Expected: 2}))
	require.ErrorIs(t, c.Begin(model.RunInfo{ID: "b", Expected: 2}), ErrRunInProgress)
	require.ErrorIs(t, New().Begin(model.RunInfo{Expected: -1}), ErrInvalidExpected)
}

func TestZeroExpectedCompletesImmediately(t *testing.T) {
	c := New()
	require.NoError(t, c.Begin(model.RunInfo{ID: "empty"}))
	assert.False(t, c.AwaitCompletion(context.Background(), time.Second))
}

func TestEventsWithoutRunAreDropped(t *testing.T) {
	dropped := metrics.CorrelatorEventsTotal.WithLabelValues("buffer", "dropped")
	before := counterValue(t, dropped)

	c := New()
	require.ErrorIs(t, c.RecordBuffer(buf(1, "a")), ErrNoActiveRun)
	require.ErrorIs(t, c.RecordMetadata(md(1)), ErrNoActiveRun)
	assert.False(t, c.AwaitCompletion(context.Background(), time.Millisecond))

	assert.Equal(t, before+1, counterValue(t, dropped))
}

func TestAbortReleasesWaiter(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := New()
	require.NoError(t, c.Begin(model.RunInfo{ID: "abort", Length: 2, Expected: 4}))
	require.NoError(t, c.RecordMetadata(md(1)))
	require.NoError(t, c.RecordBuffer(buf(1, "a")))

	result := make(chan bool, 1)
	go func() { result <- c.AwaitCompletion(context.Background(), time.Minute) }()

	time.Sleep(10 * time.Millisecond)
	c.Abort()
	c.Abort()

	select {
	case incomplete := <-result:
		assert.True(t, incomplete)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by abort")
	}

	// Late events after abort keep counting without panicking.
	require.NoError(t, c.RecordMetadata(md(2)))
	require.NoError(t, c.RecordBuffer(buf(2, "a")))

	h := &recordingHandler{}
	report, err := c.Match(h)
	require.NoError(t, err)
	assert.True(t, report.Aborted)
	assert.False(t, report.TimedOut)
	assert.Equal(t, 2, report.Pairs)
}

func TestContextCancelReleasesWaiter(t *testing.T) {
	c := New()
	require.NoError(t, c.Begin(model.RunInfo{ID: "ctx", Expected: 1}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, c.AwaitCompletion(ctx, time.Minute))
}

func TestForfeitCompletesRunWithFailedFrame(t *testing.T) {
	c := New()
	require.NoError(t, c.Begin(model.RunInfo{ID: "forfeit", Length: 2, Expected: 4}))
	require.NoError(t, c.RecordMetadata(md(1)))
	require.NoError(t, c.RecordBuffer(buf(1, "a")))
	c.Forfeit(2)

	assert.False(t, c.AwaitCompletion(context.Background(), time.Second))
	report, err := c.Match(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pairs)
	assert.False(t, report.TimedOut)

	New().Forfeit(3)
}
