// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/devcam/internal/domain/capture/lifecycle"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
	"github.com/ManuGH/devcam/internal/domain/capture/session"
	"github.com/ManuGH/devcam/internal/infrastructure/device/sim"
)

type recorder struct {
	ports.LogListener

	mu      sync.Mutex
	ready   int
	pairs   []model.Pair
	reports []model.CorrelationReport
}

func (r *recorder) OnReady(bool) { r.mu.Lock(); r.ready++; r.mu.Unlock() }
func (r *recorder) OnPairAvailable(_ model.RunInfo, p model.Pair) {
	r.mu.Lock()
	r.pairs = append(r.pairs, p)
	r.mu.Unlock()
}
func (r *recorder) OnAllPairsReported(rep model.CorrelationReport) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
}

func (r *recorder) snapshot() (int, []model.Pair, []model.CorrelationReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready, append([]model.Pair(nil), r.pairs...), append([]model.CorrelationReport(nil), r.reports...)
}

func TestDesignAgainstSimulatedDevice(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	cfg := sim.DefaultConfig()
	cfg.ConfigureDelay = time.Millisecond
	cfg.PreviewInterval = 5 * time.Millisecond
	cfg.AFSequence = []model.AFState{model.AFPassiveScan, model.AFPassiveFocused, model.AFFocusedLocked}
	cfg.Auto.FocusDistance = 2.5
	opener := sim.NewOpener(cfg)

	rec := &recorder{LogListener: ports.LogListener{Logger: zerolog.Nop()}}
	m := session.New(session.Config{CorrelationTimeout: 2 * time.Second}, session.Deps{Opener: opener, Listener: rec, Pairs: rec})
	opener.SetSink(m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	defer func() {
		cancel()
		require.NoError(t, <-done)
		assert.False(t, opener.Held("sim0"))
	}()
	require.Eventually(t, func() bool { return m.Open(ctx, "sim0") == nil }, time.Second, 5*time.Millisecond)

	preview := sim.NewTarget(model.TargetSpec{ID: "viewfinder", Format: model.FormatYUV, Width: 640, Height: 480})
	jpeg := sim.NewTarget(model.TargetSpec{ID: "jpeg", Format: model.FormatJPEG, Width: 4032, Height: 3024})
	raw := sim.NewTarget(model.TargetSpec{ID: "raw", Format: model.FormatRAW, BuffersPerExposure: 2})
	require.NoError(t, m.SetPreviewTargets(ctx, []ports.Target{preview}))
	require.NoError(t, m.SetCaptureTargets(ctx, []ports.Target{jpeg, raw}))
	require.Eventually(t, m.Ready, 2*time.Second, 5*time.Millisecond)

	d := model.Design{Name: "focus-then-bracket"}
	for _, et := range []time.Duration{time.Millisecond, 4 * time.Millisecond} {
		e := model.AutoExposure()
		e.ExposureTime = model.Explicit(et)
		e.Sensitivity = model.Explicit[int32](400)
		d.Exposures = append(d.Exposures, e)
	}
	run, err := m.Capture(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, 6, run.Expected)

	require.Eventually(t, func() bool {
		_, _, reports := rec.snapshot()
		return len(reports) == 1
	}, 3*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return m.Status().Phase == lifecycle.PhaseReady }, time.Second, 5*time.Millisecond)

	ready, pairs, reports := rec.snapshot()
	assert.Equal(t, 1, ready)
	report := reports[0]
	assert.Equal(t, run.ID, report.Run.ID)
	assert.False(t, report.TimedOut)
	assert.Equal(t, 6, report.Pairs)
	assert.Empty(t, report.UnmatchedMetadata)
	assert.Empty(t, report.UnmatchedBuffers)

	perTarget := map[model.TargetID]int{}
	for _, p := range pairs {
		assert.Equal(t, p.Buffer.FrameID, p.Metadata.FrameID)
		assert.Equal(t, float32(2.5), p.Metadata.FocusDistance)
		assert.Equal(t, int32(400), p.Metadata.Sensitivity)
		perTarget[p.Buffer.Target]++
	}
	assert.Equal(t, map[model.TargetID]int{"jpeg": 2, "raw": 4}, perTarget)

	// Disconnect tears the manager down to closed.
	require.NoError(t, opener.Disconnect("sim0"))
	require.Eventually(t, func() bool { return m.Status().Phase == lifecycle.PhaseClosed }, time.Second, 5*time.Millisecond)
	assert.False(t, opener.Held("sim0"))
}
