// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/devcam/internal/domain/capture/correlator"
	"github.com/ManuGH/devcam/internal/domain/capture/lifecycle"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
	dlog "github.com/ManuGH/devcam/internal/log"
	"github.com/ManuGH/devcam/internal/metrics"
)

func (m *Manager) onDeviceEvent(ctx context.Context, ev ports.DeviceEvent) {
	metrics.DeviceEventsTotal.WithLabelValues(string(ev.Kind)).Inc()
	if m.device == nil || ev.DeviceID != m.device.ID() {
		return
	}
	reason := model.RDeviceError
	if ev.Kind == ports.DeviceDisconnected {
		reason = model.RDeviceDisconnected
	}
	err := lifecycle.NewReasonError(reason, ev.DeviceID, ev.Err)
	m.logger.Error().Err(err).Str(dlog.FieldEvent, string(ev.Kind)).Str(dlog.FieldDeviceID, ev.DeviceID).Msg("device lost")
	m.teardown(ctx, lifecycle.EvDeviceLost)
	m.listener.OnDeviceError(err)
}

func (m *Manager) onCaptureEvent(ctx context.Context, ev ports.CaptureEvent) {
	if m.session == nil || ev.SessionID != m.session.ID() {
		return
	}
	switch ev.Request.Tag {
	case model.TagPreview, model.TagRestore:
		if ev.Kind == ports.CaptureCompleted {
			m.autoLog.Do(func() {
				m.logger.Debug().
					Str(dlog.FieldAFState, string(ev.Metadata.AFState)).
					Str(dlog.FieldAEState, string(ev.Metadata.AEState)).
					Msg("preview auto results")
			})
			m.listener.OnAutoResults(ev.Metadata)
		}
	case model.TagProbe:
		if !m.drv.Active() || ev.Request.Run != m.run.ID {
			return
		}
		if err := m.drv.HandleProbe(ctx, ev, m.session); err != nil {
			m.abortCapture(ctx, err)
		}
	case model.TagStill:
		if !m.drv.Active() || ev.Request.Run != m.run.ID {
			return
		}
		m.onStillEvent(ev)
		if m.drv.HandleFrame(ev) {
			m.sequenceCompleted(ctx)
		}
	}
}

func (m *Manager) onStillEvent(ev ports.CaptureEvent) {
	switch ev.Kind {
	case ports.CaptureStarted:
		m.listener.OnCaptureStarted(ev.FrameID)
	case ports.CaptureCompleted:
		if err := m.corr.RecordMetadata(ev.Metadata); err != nil {
			m.logger.Warn().Err(err).Int64(dlog.FieldFrameID, int64(ev.Metadata.FrameID)).Msg("metadata not recorded")
		}
		m.listener.OnCaptureCompleted(ev.Metadata)
	case ports.CaptureFailed:
		// The frame's metadata and buffers will never arrive.
		m.corr.Forfeit(1 + m.perExposure)
		m.listener.OnCaptureFailed(lifecycle.NewReasonError(model.RCaptureFailed,
			fmt.Sprintf("frame %d of %s", ev.Request.Index, m.run.Design), ev.Err))
	}
}

// sequenceCompleted runs once per Design after every frame was reported.
// Preview is restored immediately; correlation finishes on its own
// goroutine and hands back through corrDone.
func (m *Manager) sequenceCompleted(ctx context.Context) {
	run := m.run
	m.fire(ctx, lifecycle.EvSequenceCompleted)
	m.drv.Reset()
	metrics.DesignsTotal.WithLabelValues("completed").Inc()
	m.restorePreview(ctx)
	m.listener.OnSequenceCompleted(run)

	timeout := m.tuning.CorrelationTimeout
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.corr.AwaitCompletion(ctx, timeout)
		report, err := m.corr.Match(m.pairs)
		select {
		case m.corrDone <- correlationResult{run: run, report: report, err: err}:
		case <-ctx.Done():
		}
	}()
}

func (m *Manager) onCorrelationDone(ctx context.Context, res correlationResult) {
	if res.err != nil && !errors.Is(res.err, correlator.ErrNoActiveRun) {
		m.logger.Warn().Err(res.err).Str(dlog.FieldRunID, res.run.ID).Msg("correlation failed")
	}
	if m.phase.State() != lifecycle.PhaseCorrelating || res.run.ID != m.run.ID {
		return
	}
	m.captureSet.Store(nil)
	m.run = model.RunInfo{}
	m.fire(ctx, lifecycle.EvCorrelationDone)
	m.applyDeferred(ctx)
}

// bufferLoop records capture-target buffers into the correlator. Buffers
// of preview-only targets are not correlated.
func (m *Manager) bufferLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-m.buffers:
			set := m.captureSet.Load()
			if set == nil {
				metrics.IncCorrelatorEvent("buffer", "ignored")
				continue
			}
			if _, ok := (*set)[buf.Target]; !ok {
				continue
			}
			if err := m.corr.RecordBuffer(buf); err != nil {
				m.logger.Debug().Err(err).Int64(dlog.FieldFrameID, int64(buf.FrameID)).Msg("buffer dropped")
			}
		}
	}
}

// BufferAvailable is the image sink entry point. It may be called from any
// goroutine and blocks only while the buffer queue is full.
func (m *Manager) BufferAvailable(buf model.FrameBuffer) {
	if !m.running.Load() {
		metrics.IncCorrelatorEvent("buffer", "dropped")
		return
	}
	select {
	case m.buffers <- buf:
	case <-m.quit:
	}
}

var _ ports.ImageSink = (*Manager)(nil)
