// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"time"

	"github.com/ManuGH/devcam/internal/domain/capture/lifecycle"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
	dlog "github.com/ManuGH/devcam/internal/log"
	"github.com/ManuGH/devcam/internal/metrics"
)

// requestRebuild reconfigures the session for the current target sets.
// While a rebuild is outstanding the request only marks it superseded;
// while a Design runs it is deferred until the Design ends.
func (m *Manager) requestRebuild(ctx context.Context) {
	if m.device == nil || len(m.preview) == 0 {
		return
	}
	if m.phase.State().Busy() {
		m.deferred = true
		m.logger.Debug().Msg("rebuild deferred until design ends")
		return
	}
	if m.rebuilding {
		m.superseded = true
		m.fire(ctx, lifecycle.EvRebuildRequested)
		m.logger.Debug().Msg("rebuild superseded")
		return
	}
	m.startRebuild(ctx)
}

func (m *Manager) startRebuild(ctx context.Context) {
	m.closeSession()
	m.fire(ctx, lifecycle.EvRebuildRequested)

	targets := make([]ports.Target, 0, len(m.preview)+len(m.capture))
	targets = append(targets, m.preview...)
	targets = append(targets, m.capture...)

	sess, err := m.device.CreateSession(ctx, targets)
	if err != nil {
		m.rebuilding = true
		m.settle(ctx, nil, lifecycle.NewReasonError(model.RSessionConfigureFailed, "create session", err))
		return
	}
	m.pending = sess
	m.rebuilding = true
	m.armRebuildTimer()
	m.logger.Debug().
		Str("session_id", sess.ID()).
		Int("preview_targets", len(m.preview)).
		Int("capture_targets", len(m.capture)).
		Msg("session rebuild started")
}

// settle resolves the outstanding rebuild exactly once. If a newer request
// superseded it, its outcome is discarded without notifying the listener and
// one fresh rebuild starts with the latest target sets.
func (m *Manager) settle(ctx context.Context, sess ports.CaptureSession, err error) {
	if !m.rebuilding {
		return
	}
	m.disarmRebuildTimer()
	m.rebuilding = false
	m.pending = nil

	if m.superseded {
		m.superseded = false
		metrics.RebuildsTotal.WithLabelValues("superseded").Inc()
		if sess != nil {
			if cerr := sess.Close(); cerr != nil {
				m.logger.Debug().Err(cerr).Msg("close superseded session")
			}
		}
		m.startRebuild(ctx)
		return
	}

	if err != nil {
		if sess != nil {
			_ = sess.Close()
		}
		metrics.RebuildsTotal.WithLabelValues("failed").Inc()
		m.fire(ctx, lifecycle.EvConfigureFailed)
		m.logger.Error().Err(err).Str(dlog.FieldEvent, "session.configure_failed").Msg("session configuration failed")
		m.listener.OnDeviceError(err)
		return
	}

	m.session = sess
	metrics.RebuildsTotal.WithLabelValues("configured").Inc()
	m.fire(ctx, lifecycle.EvConfigured)
	m.startSteadyState(ctx)
	m.logger.Info().Str(dlog.FieldEvent, "session.configured").Str("session_id", sess.ID()).Msg("session configured")
	m.listener.OnReady(m.caps.ManualPostProcessing)
}

func (m *Manager) onSessionEvent(ctx context.Context, ev ports.SessionEvent) {
	if m.pending == nil || ev.SessionID != m.pending.ID() {
		m.logger.Debug().Str("session_id", ev.SessionID).Str(dlog.FieldEvent, string(ev.Kind)).Msg("stale session event ignored")
		return
	}
	sess := m.pending
	switch ev.Kind {
	case ports.SessionConfigured:
		m.settle(ctx, sess, nil)
	case ports.SessionConfigureFailed:
		m.settle(ctx, sess, lifecycle.NewReasonError(model.RSessionConfigureFailed, "", ev.Err))
	case ports.SessionClosed:
		m.settle(ctx, sess, lifecycle.NewReasonError(model.RSessionConfigureFailed, "session closed while configuring", ev.Err))
	}
}

func (m *Manager) onRebuildTimeout(ctx context.Context) {
	m.rebuildDeadline = nil
	if !m.rebuilding {
		return
	}
	metrics.RebuildsTotal.WithLabelValues("timeout").Inc()
	m.settle(ctx, m.pending, lifecycle.NewReasonError(model.RSessionConfigureFailed, "configuration timed out", nil))
}

func (m *Manager) armRebuildTimer() {
	m.disarmRebuildTimer()
	m.rebuildTimer = time.NewTimer(m.cfg.RebuildTimeout)
	m.rebuildDeadline = m.rebuildTimer.C
}

func (m *Manager) disarmRebuildTimer() {
	if m.rebuildTimer != nil {
		m.rebuildTimer.Stop()
		m.rebuildTimer = nil
	}
	m.rebuildDeadline = nil
}

// startSteadyState installs the repeating auto-everything preview request.
func (m *Manager) startSteadyState(ctx context.Context) {
	if m.session == nil {
		return
	}
	req := model.PreviewRequest(ports.IDs(m.preview))
	if err := m.session.SetRepeating(ctx, req); err != nil {
		err = lifecycle.NewReasonError(model.RCaptureFailed, "start preview", err)
		m.logger.Error().Err(err).Msg("steady state failed")
		m.listener.OnDeviceError(err)
	}
}

// restorePreview unlocks exposure and cancels any focus trigger with one
// request, then resumes the repeating preview.
func (m *Manager) restorePreview(ctx context.Context) {
	if m.session == nil {
		return
	}
	if err := m.session.Capture(ctx, model.RestoreRequest(ports.IDs(m.preview))); err != nil {
		m.logger.Warn().Err(err).Msg("restore request failed")
	}
	m.startSteadyState(ctx)
}

// applyDeferred runs a rebuild requested while a Design was executing.
func (m *Manager) applyDeferred(ctx context.Context) {
	if !m.deferred {
		return
	}
	m.deferred = false
	m.requestRebuild(ctx)
}

func (m *Manager) closeSession() {
	if m.session == nil {
		return
	}
	if err := m.session.StopRepeating(); err != nil {
		m.logger.Debug().Err(err).Msg("stop repeating")
	}
	if err := m.session.Close(); err != nil {
		m.logger.Debug().Err(err).Msg("close session")
	}
	m.session = nil
}

// teardown releases session and device and moves to closed via ev.
func (m *Manager) teardown(ctx context.Context, ev lifecycle.EventKind) {
	m.disarmRebuildTimer()
	m.rebuilding, m.superseded, m.deferred = false, false, false

	wasCapturing := m.phase.State() == lifecycle.PhaseCapturing
	if m.drv.Active() {
		m.drv.Reset()
	}
	if wasCapturing {
		metrics.DesignsTotal.WithLabelValues("aborted").Inc()
		m.finishCorrelationNow()
	} else if m.corr.Active() {
		// The correlation waiter reports the partial result.
		m.corr.Abort()
	}
	m.run = model.RunInfo{}

	m.closeSession()
	if m.pending != nil {
		_ = m.pending.Close()
		m.pending = nil
	}
	if m.device != nil {
		id := m.device.ID()
		if err := m.device.Close(); err != nil {
			m.logger.Warn().Err(err).Str(dlog.FieldDeviceID, id).Msg("device close failed")
		}
		m.logger.Info().Str(dlog.FieldEvent, "device.closed").Str(dlog.FieldDeviceID, id).Str(dlog.FieldReason, string(ev)).Msg("device released")
	}
	m.device = nil
	m.caps = model.Capabilities{}
	m.preview, m.capture = nil, nil
	m.fire(ctx, ev)
}
