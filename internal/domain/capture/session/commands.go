// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/devcam/internal/domain/capture/driver"
	"github.com/ManuGH/devcam/internal/domain/capture/lifecycle"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
	dlog "github.com/ManuGH/devcam/internal/log"
	"github.com/ManuGH/devcam/internal/metrics"
)

// Open acquires exclusive ownership of the device. It fails with a
// ResourceUnavailable error if this manager already holds a device, the
// device is held elsewhere, or the open/close gate stays busy longer than
// OpenTimeout; and with CapabilityMissing if the device lacks manual sensor
// control.
func (m *Manager) Open(ctx context.Context, deviceID string) error {
	if err := m.acquireGate(ctx); err != nil {
		return err
	}
	defer m.releaseGate()
	return m.do(ctx, "open", func(wctx context.Context) error {
		return m.open(wctx, deviceID)
	})
}

func (m *Manager) open(ctx context.Context, deviceID string) error {
	if m.device != nil {
		return lifecycle.NewReasonError(model.RDeviceUnavailable, fmt.Sprintf("already holding %s", m.device.ID()), nil)
	}
	dev, err := m.opener.Open(ctx, deviceID, m.events())
	if err != nil {
		return lifecycle.NewReasonError(model.RDeviceUnavailable, deviceID, err)
	}
	caps := dev.Capabilities()
	if !caps.ManualSensor {
		if cerr := dev.Close(); cerr != nil {
			m.logger.Warn().Err(cerr).Str(dlog.FieldDeviceID, deviceID).Msg("close of inadequate device failed")
		}
		return lifecycle.NewReasonError(model.RInadequateDevice, deviceID+" lacks manual sensor control", nil)
	}
	m.device = dev
	m.caps = caps
	m.fire(ctx, lifecycle.EvOpened)
	m.logger.Info().
		Str(dlog.FieldEvent, "device.opened").
		Str(dlog.FieldDeviceID, deviceID).
		Bool("post_processing", caps.ManualPostProcessing).
		Msg("device opened")
	m.requestRebuild(ctx)
	return nil
}

// Close releases the device, aborts any running Design and clears both
// target sets. Closing a manager without a device only clears the targets.
func (m *Manager) Close(ctx context.Context) error {
	if err := m.acquireGate(ctx); err != nil {
		return err
	}
	defer m.releaseGate()
	return m.do(ctx, "close", func(wctx context.Context) error {
		if m.device != nil {
			m.teardown(wctx, lifecycle.EvClosed)
		}
		m.preview, m.capture = nil, nil
		return nil
	})
}

// SetPreviewTargets replaces the preview target set and rebuilds the session.
func (m *Manager) SetPreviewTargets(ctx context.Context, targets []ports.Target) error {
	if err := validTargets(targets); err != nil {
		return err
	}
	return m.do(ctx, "set_preview_targets", func(wctx context.Context) error {
		m.preview = append([]ports.Target(nil), targets...)
		m.requestRebuild(wctx)
		return nil
	})
}

// SetCaptureTargets replaces the capture target set and rebuilds the session.
func (m *Manager) SetCaptureTargets(ctx context.Context, targets []ports.Target) error {
	if err := validTargets(targets); err != nil {
		return err
	}
	return m.do(ctx, "set_capture_targets", func(wctx context.Context) error {
		m.capture = append([]ports.Target(nil), targets...)
		m.requestRebuild(wctx)
		return nil
	})
}

func validTargets(targets []ports.Target) error {
	for _, t := range targets {
		if t == nil || !t.Valid() {
			id := model.TargetID("<nil>")
			if t != nil {
				id = t.Spec().ID
			}
			return lifecycle.NewReasonError(model.RInvalidTarget, string(id), nil)
		}
	}
	return nil
}

// Capture starts executing design. It returns once the first submission
// was accepted; progress is reported through the Listener and the pairs
// through the PairHandler. A new Design is accepted only after the
// previous one has been fully correlated.
func (m *Manager) Capture(ctx context.Context, design model.Design) (model.RunInfo, error) {
	var run model.RunInfo
	parent := trace.SpanContextFromContext(ctx)
	err := m.do(ctx, "capture", func(wctx context.Context) error {
		if parent.IsValid() {
			wctx = trace.ContextWithSpanContext(wctx, parent)
		}
		var err error
		run, err = m.startCapture(wctx, design)
		return err
	})
	return run, err
}

func (m *Manager) startCapture(ctx context.Context, design model.Design) (model.RunInfo, error) {
	ready := m.phase.State().AcceptsCapture() && m.session != nil && !m.drv.Active()
	if err := driver.Validate(design, m.preview, m.capture, ready); err != nil {
		return model.RunInfo{}, err
	}

	specs := ports.Specs(m.capture)
	run := model.RunInfo{
		ID:         uuid.NewString(),
		Design:     design.Name,
		Length:     design.Len(),
		Processing: design.Processing,
		Expected:   model.ExpectedEvents(design.Len(), specs),
		StartedAt:  time.Now().UTC(),
	}
	if err := m.corr.Begin(run); err != nil {
		return model.RunInfo{}, lifecycle.NewReasonError(model.RNotReady, "correlation in progress", err)
	}
	if o, ok := m.pairs.(ports.RunObserver); ok {
		o.OnRunStarted(run, design)
	}
	m.perExposure = (run.Expected - run.Length) / max(run.Length, 1)
	set := make(map[model.TargetID]struct{}, len(specs))
	for _, s := range specs {
		set[s.ID] = struct{}{}
	}
	m.captureSet.Store(&set)

	if err := m.session.StopRepeating(); err != nil {
		m.logger.Warn().Err(err).Msg("stop repeating before capture failed")
	}
	m.run = run
	m.fire(ctx, lifecycle.EvCaptureStarted)

	plan := driver.Plan{
		Run:            run,
		Design:         design,
		PreviewTargets: ports.IDs(m.preview),
		CaptureTargets: ports.IDs(m.capture),
		Capabilities:   m.caps,
	}
	if err := m.drv.Start(ctx, plan, m.session); err != nil {
		m.abortCapture(ctx, err)
		return model.RunInfo{}, err
	}
	m.logger.Info().
		Str(dlog.FieldEvent, "capture.started").
		Str(dlog.FieldRunID, run.ID).
		Str(dlog.FieldDesign, run.Design).
		Int(dlog.FieldExposures, run.Length).
		Int(dlog.FieldExpected, run.Expected).
		Msg("design accepted")
	return run, nil
}

// abortCapture ends a Design that cannot complete and returns to preview.
func (m *Manager) abortCapture(ctx context.Context, cause error) {
	m.drv.Reset()
	m.finishCorrelationNow()
	metrics.DesignsTotal.WithLabelValues("failed").Inc()
	m.fire(ctx, lifecycle.EvCaptureAborted)
	m.listener.OnCaptureFailed(cause)
	m.run = model.RunInfo{}
	m.restorePreview(ctx)
	m.applyDeferred(ctx)
}

// finishCorrelationNow aborts and reports the active correlation run
// synchronously. Used when no waiter goroutine exists yet.
func (m *Manager) finishCorrelationNow() {
	if !m.corr.Active() {
		return
	}
	m.corr.Abort()
	if _, err := m.corr.Match(m.pairs); err != nil {
		m.logger.Debug().Err(err).Msg("abort correlation")
	}
	m.captureSet.Store(nil)
}

// UpdateTuning applies new runtime knobs. They take effect for the next Design.
func (m *Manager) UpdateTuning(ctx context.Context, t Tuning) error {
	return m.do(ctx, "update_tuning", func(context.Context) error {
		if t.CorrelationTimeout <= 0 {
			t.CorrelationTimeout = m.cfg.CorrelationTimeout
		}
		m.tuning = t
		policy := m.cfg.Convergence
		policy.MaxProbes = t.MaxProbes
		m.drv.SetPolicy(policy)
		m.logger.Info().
			Dur("correlation_timeout", t.CorrelationTimeout).
			Int("max_probes", t.MaxProbes).
			Msg("tuning updated")
		return nil
	})
}
