// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
)

type bufferLog struct {
	mu   sync.Mutex
	bufs []model.FrameBuffer
}

func (b *bufferLog) BufferAvailable(buf model.FrameBuffer) {
	b.mu.Lock()
	b.bufs = append(b.bufs, buf)
	b.mu.Unlock()
}

func (b *bufferLog) list() []model.FrameBuffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.FrameBuffer(nil), b.bufs...)
}

type channels struct {
	device  chan ports.DeviceEvent
	session chan ports.SessionEvent
	capture chan ports.CaptureEvent
}

func newChannels() channels {
	return channels{
		device:  make(chan ports.DeviceEvent, 16),
		session: make(chan ports.SessionEvent, 16),
		capture: make(chan ports.CaptureEvent, 64),
	}
}

func (c channels) events() ports.Events {
	return ports.Events{Device: c.device, Session: c.session, Capture: c.capture}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ConfigureDelay = 0
	cfg.FrameDuration = 0
	cfg.PreviewInterval = 0
	return cfg
}

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		var zero T
		return zero
	}
}

func openConfigured(t *testing.T, o *Opener, c channels, targets ...ports.Target) (ports.Device, ports.CaptureSession) {
	t.Helper()
	dev, err := o.Open(context.Background(), "sim0", c.events())
	require.NoError(t, err)
	sess, err := dev.CreateSession(context.Background(), targets)
	require.NoError(t, err)
	ev := recv(t, c.session)
	require.Equal(t, ports.SessionConfigured, ev.Kind)
	require.Equal(t, sess.ID(), ev.SessionID)
	return dev, sess
}

func TestOpenIsExclusive(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	o := NewOpener(testConfig())
	c := newChannels()

	dev, err := o.Open(context.Background(), "sim0", c.events())
	require.NoError(t, err)
	_, err = o.Open(context.Background(), "sim0", c.events())
	require.ErrorIs(t, err, ports.ErrDeviceBusy)
	_, err = o.Open(context.Background(), "sim9", c.events())
	require.ErrorIs(t, err, ports.ErrDeviceNotFound)

	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
	assert.False(t, o.Held("sim0"))
	dev, err = o.Open(context.Background(), "sim0", c.events())
	require.NoError(t, err)
	require.NoError(t, dev.Close())
}

func TestConfigureFailureInjection(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	cfg := testConfig()
	cfg.Faults.FailConfigure = 1
	o := NewOpener(cfg)
	c := newChannels()

	dev, err := o.Open(context.Background(), "sim0", c.events())
	require.NoError(t, err)
	defer dev.Close()
	target := NewTarget(model.TargetSpec{ID: "p"})

	s1, err := dev.CreateSession(context.Background(), []ports.Target{target})
	require.NoError(t, err)
	ev := recv(t, c.session)
	assert.Equal(t, ports.SessionConfigureFailed, ev.Kind)
	assert.Equal(t, s1.ID(), ev.SessionID)
	require.Error(t, ev.Err)

	s2, err := dev.CreateSession(context.Background(), []ports.Target{target})
	require.NoError(t, err)
	ev = recv(t, c.session)
	assert.Equal(t, ports.SessionConfigured, ev.Kind)
	assert.Equal(t, s2.ID(), ev.SessionID)

	target.Release()
	_, err = dev.CreateSession(context.Background(), []ports.Target{target})
	require.Error(t, err)
}

func TestStillFramesDeliverBuffersPerTarget(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	cfg := testConfig()
	cfg.Faults.FailStills = []int{1}
	cfg.Faults.DropBuffers = []int{2}
	o := NewOpener(cfg)
	sink := &bufferLog{}
	o.SetSink(sink)
	c := newChannels()

	preview := NewTarget(model.TargetSpec{ID: "p", Format: model.FormatYUV})
	raw := NewTarget(model.TargetSpec{ID: "r", Format: model.FormatRAW, BuffersPerExposure: 2})
	dev, sess := openConfigured(t, o, c, preview, raw)
	defer dev.Close()

	settings := model.ExposureSettings{ExposureTime: 5 * time.Millisecond, Sensitivity: 200}
	var reqs []model.Request
	for i := 0; i < 3; i++ {
		reqs = append(reqs, model.StillRequest("run", i, []model.TargetID{"r"}, settings, model.ProcessingFast))
	}
	require.NoError(t, sess.CaptureBurst(context.Background(), reqs))

	var last model.FrameID
	kinds := map[ports.CaptureEventKind]int{}
	var completed []ports.CaptureEvent
	for i := 0; i < 6; i++ {
		ev := recv(t, c.capture)
		kinds[ev.Kind]++
		if ev.Kind == ports.CaptureStarted {
			assert.Greater(t, ev.FrameID, last)
			last = ev.FrameID
		}
		if ev.Kind == ports.CaptureCompleted {
			completed = append(completed, ev)
		}
	}
	assert.Equal(t, 3, kinds[ports.CaptureStarted])
	assert.Equal(t, 2, kinds[ports.CaptureCompleted])
	assert.Equal(t, 1, kinds[ports.CaptureFailed])

	require.Len(t, completed, 2)
	md := completed[0].Metadata
	assert.Equal(t, completed[0].FrameID, md.FrameID)
	assert.Equal(t, 5*time.Millisecond, md.ExposureTime)
	assert.Equal(t, "fast", md.Extra["processing"])

	// Frame 0 delivers two raw buffers; frame 1 failed; frame 2 dropped them.
	bufs := sink.list()
	require.Len(t, bufs, 2)
	for _, b := range bufs {
		assert.Equal(t, completed[0].FrameID, b.FrameID)
		assert.Equal(t, model.TargetID("r"), b.Target)
		assert.Equal(t, model.FormatRAW, b.Format)
		assert.NotEmpty(t, b.Data)
	}
}

func TestProbesFollowScriptedStates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	cfg := testConfig()
	cfg.AFSequence = []model.AFState{model.AFPassiveScan, model.AFPassiveFocused, model.AFFocusedLocked}
	cfg.AESequence = []model.AEState{model.AESearching, model.AEConverged}
	o := NewOpener(cfg)
	c := newChannels()
	dev, sess := openConfigured(t, o, c, NewTarget(model.TargetSpec{ID: "p"}))
	defer dev.Close()

	var got []model.AFState
	var ae []model.AEState
	for i := 0; i < 4; i++ {
		require.NoError(t, sess.Capture(context.Background(), model.ProbeRequest("run", i+1, []model.TargetID{"p"}, true, true)))
		recv(t, c.capture)
		ev := recv(t, c.capture)
		require.Equal(t, ports.CaptureCompleted, ev.Kind)
		got = append(got, ev.Metadata.AFState)
		ae = append(ae, ev.Metadata.AEState)
		assert.Equal(t, cfg.Auto.FocusDistance, ev.Metadata.FocusDistance)
	}
	assert.Equal(t, []model.AFState{model.AFPassiveScan, model.AFPassiveFocused, model.AFFocusedLocked, model.AFFocusedLocked}, got)
	assert.Equal(t, []model.AEState{model.AESearching, model.AEConverged, model.AEConverged, model.AEConverged}, ae)

	// A restore frame starts the script over.
	require.NoError(t, sess.Capture(context.Background(), model.RestoreRequest([]model.TargetID{"p"})))
	recv(t, c.capture)
	recv(t, c.capture)
	require.NoError(t, sess.Capture(context.Background(), model.ProbeRequest("run", 1, []model.TargetID{"p"}, true, false)))
	recv(t, c.capture)
	assert.Equal(t, model.AFPassiveScan, recv(t, c.capture).Metadata.AFState)
}

func TestRepeatingPreview(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	cfg := testConfig()
	cfg.PreviewInterval = 5 * time.Millisecond
	o := NewOpener(cfg)
	c := newChannels()
	dev, sess := openConfigured(t, o, c, NewTarget(model.TargetSpec{ID: "p"}))

	require.NoError(t, sess.SetRepeating(context.Background(), model.PreviewRequest([]model.TargetID{"p"})))
	for i := 0; i < 4; i++ {
		ev := recv(t, c.capture)
		assert.Equal(t, model.TagPreview, ev.Request.Tag)
	}
	require.NoError(t, sess.StopRepeating())
	require.NoError(t, sess.Close())
	require.ErrorIs(t, sess.Capture(context.Background(), model.PreviewRequest(nil)), ports.ErrSessionClosed)
	require.NoError(t, dev.Close())
}

func TestDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())
	o := NewOpener(testConfig())
	c := newChannels()
	dev, _ := openConfigured(t, o, c, NewTarget(model.TargetSpec{ID: "p"}))

	require.NoError(t, o.Disconnect("sim0"))
	ev := recv(t, c.device)
	assert.Equal(t, ports.DeviceDisconnected, ev.Kind)
	assert.Equal(t, "sim0", ev.DeviceID)

	_, err := dev.CreateSession(context.Background(), nil)
	require.ErrorIs(t, err, ports.ErrSessionClosed)
	require.NoError(t, dev.Close())
	require.Error(t, o.Disconnect("sim0"))
}
