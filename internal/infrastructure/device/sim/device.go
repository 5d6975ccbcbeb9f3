// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
	dlog "github.com/ManuGH/devcam/internal/log"
)

// maxBacklog bounds queued preview frames; repeating ticks are skipped
// while the device is behind.
const maxBacklog = 4

// Device is one open simulated device. All results are produced by a
// single worker goroutine in submission order.
type Device struct {
	id      string
	cfg     Config
	ev      ports.Events
	sink    ports.ImageSink
	release func()
	logger  zerolog.Logger
	epoch   time.Time

	stop      chan struct{}
	wake      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	mu         sync.Mutex
	queue      []func()
	lost       bool
	configures int
	lastFrame  model.FrameID
	probeSeq   int
}

func newDevice(id string, cfg Config, ev ports.Events, sink ports.ImageSink, release func()) *Device {
	d := &Device{
		id:      id,
		cfg:     cfg,
		ev:      ev,
		sink:    sink,
		release: release,
		logger:  dlog.WithComponent("sim").With().Str(dlog.FieldDeviceID, id).Logger(),
		epoch:   time.Now(),
		stop:    make(chan struct{}),
		wake:    make(chan struct{}, 1),
	}
	d.wg.Add(1)
	go d.loop()
	return d
}

func (d *Device) ID() string                       { return d.id }
func (d *Device) Capabilities() model.Capabilities { return d.cfg.Capabilities }

// CreateSession starts configuring a session. The outcome is reported on
// the session event channel after ConfigureDelay.
func (d *Device) CreateSession(_ context.Context, targets []ports.Target) (ports.CaptureSession, error) {
	d.mu.Lock()
	lost := d.lost
	d.mu.Unlock()
	if lost {
		return nil, fmt.Errorf("device %s disconnected: %w", d.id, ports.ErrSessionClosed)
	}

	specs := make(map[model.TargetID]model.TargetSpec, len(targets))
	for _, t := range targets {
		if !t.Valid() {
			return nil, fmt.Errorf("target %s is not valid", t.Spec().ID)
		}
		specs[t.Spec().ID] = t.Spec()
	}
	s := &Session{id: "sim-" + uuid.NewString(), dev: d, specs: specs}

	err := d.enqueue(func() {
		if !d.sleep(d.cfg.ConfigureDelay) {
			return
		}
		d.mu.Lock()
		d.configures++
		fail := d.configures <= d.cfg.Faults.FailConfigure
		d.mu.Unlock()

		ev := ports.SessionEvent{Kind: ports.SessionConfigured, SessionID: s.id}
		if fail {
			ev = ports.SessionEvent{Kind: ports.SessionConfigureFailed, SessionID: s.id, Err: fmt.Errorf("simulated configure failure")}
		}
		d.emitSession(ev)
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close stops the device worker and releases the id for reopening.
func (d *Device) Close() error {
	d.closeOnce.Do(func() {
		close(d.stop)
		d.wg.Wait()
		d.release()
		d.logger.Debug().Msg("simulated device closed")
	})
	return nil
}

func (d *Device) disconnect() {
	d.mu.Lock()
	d.lost = true
	d.queue = nil
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case d.ev.Device <- ports.DeviceEvent{Kind: ports.DeviceDisconnected, DeviceID: d.id}:
		case <-d.stop:
		}
	}()
}

func (d *Device) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stop:
			return
		case <-d.wake:
		}
		for job := d.next(); job != nil; job = d.next() {
			select {
			case <-d.stop:
				return
			default:
			}
			job()
		}
	}
}

func (d *Device) enqueue(job func()) error {
	select {
	case <-d.stop:
		return ports.ErrSessionClosed
	default:
	}
	d.mu.Lock()
	d.queue = append(d.queue, job)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
	return nil
}

func (d *Device) backlog() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *Device) next() func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.queue) == 0 {
		return nil
	}
	job := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	return job
}

// sleep waits for dur unless the device closes first.
func (d *Device) sleep(dur time.Duration) bool {
	if dur <= 0 {
		return true
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-d.stop:
		return false
	}
}

// nextFrameID returns the sensor timestamp of a new frame in nanoseconds
// since open. Timestamps are strictly increasing.
func (d *Device) nextFrameID() model.FrameID {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := model.FrameID(time.Since(d.epoch).Nanoseconds())
	if id <= d.lastFrame {
		id = d.lastFrame + 1
	}
	d.lastFrame = id
	return id
}

func (d *Device) emitSession(ev ports.SessionEvent) bool {
	select {
	case d.ev.Session <- ev:
		return true
	case <-d.stop:
		return false
	}
}

func (d *Device) emitCapture(ev ports.CaptureEvent) bool {
	select {
	case d.ev.Capture <- ev:
		return true
	case <-d.stop:
		return false
	}
}

// frame runs one request to completion on the worker goroutine.
func (d *Device) frame(s *Session, req model.Request) {
	if s.isClosed() || d.isLost() {
		return
	}
	if !d.sleep(d.cfg.FrameDuration) {
		return
	}
	id := d.nextFrameID()
	base := ports.CaptureEvent{SessionID: s.id, Request: req, FrameID: id}

	started := base
	started.Kind = ports.CaptureStarted
	if !d.emitCapture(started) {
		return
	}

	var md model.FrameMetadata
	failed := false
	switch req.Tag {
	case model.TagStill:
		failed = d.cfg.Faults.failsStill(req.Index)
		md = d.stillMetadata(req, id)
		d.resetProbes()
	case model.TagProbe:
		failed = d.cfg.Faults.FailProbes
		md = d.probeMetadata(id)
	case model.TagRestore:
		md = d.previewMetadata(id)
		d.resetProbes()
	default:
		md = d.previewMetadata(id)
	}

	out := base
	if failed {
		out.Kind = ports.CaptureFailed
		out.Err = fmt.Errorf("simulated capture failure at %s %d", req.Tag, req.Index)
		d.emitCapture(out)
		return
	}
	if req.Tag != model.TagStill || !d.cfg.Faults.dropsBuffers(req.Index) {
		d.deliver(s, req, id)
	}
	out.Kind = ports.CaptureCompleted
	out.Metadata = md
	d.emitCapture(out)
}

// deliver hands the buffers of one frame to the sink, BuffersPerExposure
// per target.
func (d *Device) deliver(s *Session, req model.Request, id model.FrameID) {
	if d.sink == nil {
		return
	}
	for _, tid := range req.Targets {
		spec, ok := s.specs[tid]
		if !ok {
			continue
		}
		for part := 0; part < spec.Multiplicity(); part++ {
			d.sink.BufferAvailable(model.FrameBuffer{
				FrameID: id,
				Target:  tid,
				Format:  spec.Format,
				Width:   spec.Width,
				Height:  spec.Height,
				Data:    []byte(fmt.Sprintf("devcam-sim %s %s frame=%d part=%d\n", d.id, tid, id, part)),
			})
		}
	}
}

func (d *Device) stillMetadata(req model.Request, id model.FrameID) model.FrameMetadata {
	md := model.FrameMetadata{
		FrameID:       id,
		ExposureTime:  req.Settings.ExposureTime,
		Sensitivity:   req.Settings.Sensitivity,
		Aperture:      req.Settings.Aperture,
		FocalLength:   req.Settings.FocalLength,
		FocusDistance: req.Settings.FocusDistance,
		AFState:       model.AFInactive,
		AEState:       model.AEInactive,
	}
	if req.Processing != "" {
		md.Extra = map[string]string{"processing": string(req.Processing)}
	}
	return md
}

func (d *Device) probeMetadata(id model.FrameID) model.FrameMetadata {
	d.mu.Lock()
	seq := d.probeSeq
	d.probeSeq++
	d.mu.Unlock()

	md := d.cfg.Auto
	md.FrameID = id
	md.AFState = pick(d.cfg.AFSequence, seq, model.AFFocusedLocked)
	md.AEState = pick(d.cfg.AESequence, seq, model.AEConverged)
	md.Extra = nil
	return md
}

func (d *Device) previewMetadata(id model.FrameID) model.FrameMetadata {
	md := d.cfg.Auto
	md.FrameID = id
	md.AFState = model.AFPassiveFocused
	md.AEState = model.AEConverged
	md.Extra = nil
	return md
}

func (d *Device) resetProbes() {
	d.mu.Lock()
	d.probeSeq = 0
	d.mu.Unlock()
}

func (d *Device) isLost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

func pick[S any](seq []S, i int, fallback S) S {
	if len(seq) == 0 {
		return fallback
	}
	return seq[min(i, len(seq)-1)]
}

var _ ports.Device = (*Device)(nil)
