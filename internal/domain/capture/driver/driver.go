// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package driver turns a Design into device submissions and tracks their
// completion.
package driver

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/devcam/internal/domain/capture/convergence"
	"github.com/ManuGH/devcam/internal/domain/capture/lifecycle"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
	dlog "github.com/ManuGH/devcam/internal/log"
	"github.com/ManuGH/devcam/internal/metrics"
	"github.com/ManuGH/devcam/internal/telemetry"
)

// Submitter is the part of a capture session the driver needs.
type Submitter interface {
	Capture(ctx context.Context, req model.Request) error
	CaptureBurst(ctx context.Context, reqs []model.Request) error
}

// Plan is everything Start needs to execute one Design.
type Plan struct {
	Run            model.RunInfo
	Design         model.Design
	PreviewTargets []model.TargetID
	CaptureTargets []model.TargetID
	Capabilities   model.Capabilities
}

// Stats is a snapshot of the driver counters.
type Stats struct {
	Run       string            `json:"run,omitempty"`
	State     convergence.State `json:"convergence_state,omitempty"`
	Probes    int               `json:"probes"`
	Submitted int               `json:"submitted"`
	Completed int               `json:"completed"`
	Failed    int               `json:"failed"`
}

// Driver executes one Design at a time. It is owned by the device worker
// and is not safe for concurrent use.
type Driver struct {
	policy convergence.Policy
	tracer trace.Tracer
	logger zerolog.Logger

	active    bool
	finished  bool
	plan      Plan
	resolved  model.Design
	conv      *convergence.Machine
	lastProbe model.Request
	submitted int
	completed int
	failed    int

	span trace.Span
}

// Option configures a Driver.
type Option func(*Driver)

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Driver) { d.tracer = t }
}

// New returns an idle driver using the given retry policy.
func New(policy convergence.Policy, opts ...Option) *Driver {
	d := &Driver{
		policy: policy,
		tracer: otel.Tracer("github.com/ManuGH/devcam/internal/domain/capture/driver"),
		logger: dlog.WithComponent("driver"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetPolicy replaces the retry policy for subsequent Designs.
func (d *Driver) SetPolicy(p convergence.Policy) { d.policy = p }

// Validate checks the preconditions of a capture without side effects.
func Validate(design model.Design, preview, capture []ports.Target, ready bool) error {
	if len(preview) == 0 || len(capture) == 0 {
		return lifecycle.NewReasonError(model.RNoOutputTargets, "preview and capture targets are required", nil)
	}
	for _, t := range append(append([]ports.Target(nil), preview...), capture...) {
		if !t.Valid() {
			return lifecycle.NewReasonError(model.RNoOutputTargets, fmt.Sprintf("target %s is no longer valid", t.Spec().ID), nil)
		}
	}
	if design.Len() == 0 {
		return lifecycle.NewReasonError(model.REmptyDesign, design.Name, nil)
	}
	if design.Len() > model.MaxExposures {
		return lifecycle.NewReasonError(model.RDesignTooLong,
			fmt.Sprintf("%s has %d exposures, at most %d allowed", design.Name, design.Len(), model.MaxExposures), nil)
	}
	if !ready {
		return lifecycle.NewReasonError(model.RNotReady, "a design is in progress or the session is not configured", nil)
	}
	return nil
}

// Active reports whether a Design is executing.
func (d *Driver) Active() bool { return d.active }

// Run returns the run being executed.
func (d *Driver) Run() model.RunInfo { return d.plan.Run }

// Resolved returns the explicit Design submitted as burst, if any.
func (d *Driver) Resolved() model.Design { return d.resolved }

// History returns the convergence states visited by the current run.
func (d *Driver) History() []convergence.State {
	if d.conv == nil {
		return nil
	}
	return d.conv.History()
}

// Stats returns the current counters.
func (d *Driver) Stats() Stats {
	s := Stats{
		Run:       d.plan.Run.ID,
		Submitted: d.submitted,
		Completed: d.completed,
		Failed:    d.failed,
	}
	if d.conv != nil {
		s.State = d.conv.State()
		s.Probes = d.conv.Probes()
	}
	return s
}

// Start classifies the Design and submits either the burst or the first probe.
func (d *Driver) Start(ctx context.Context, plan Plan, sub Submitter) error {
	if d.active {
		return lifecycle.NewReasonError(model.RNotReady, "driver busy", nil)
	}
	d.reset()
	d.active = true
	d.plan = plan
	d.plan.Design = plan.Design.Clone()
	d.conv = convergence.New(d.plan.Design, d.policy)
	ctx, d.span = d.tracer.Start(ctx, "capture.design",
		trace.WithAttributes(telemetry.DesignAttributes(plan.Run.ID, plan.Design.Name, plan.Design.Len(), string(d.conv.State()))...))

	d.logger.Info().
		Str(dlog.FieldRunID, plan.Run.ID).
		Str(dlog.FieldDesign, plan.Design.Name).
		Int(dlog.FieldExposures, plan.Design.Len()).
		Str(dlog.FieldState, string(d.conv.State())).
		Msg("design started")

	if !d.conv.Needed() {
		return d.fail(d.submitBurst(ctx, sub, d.plan.Design.Resolve(nil, plan.Capabilities)))
	}
	if err := d.conv.CountProbe(); err != nil {
		return d.fail(err)
	}
	d.lastProbe = model.ProbeRequest(plan.Run.ID, 1, plan.PreviewTargets, d.conv.NeedsFocus(), d.conv.NeedsExposure())
	return d.fail(d.submitProbe(ctx, sub, d.lastProbe))
}

// HandleProbe feeds a probe event into convergence and submits the next
// probe or the burst. A failed probe aborts the Design.
func (d *Driver) HandleProbe(ctx context.Context, ev ports.CaptureEvent, sub Submitter) error {
	if !d.active || ev.Request.Run != d.plan.Run.ID || d.resolved.Len() > 0 {
		return nil
	}
	switch ev.Kind {
	case ports.CaptureStarted:
		return nil
	case ports.CaptureFailed:
		return d.fail(lifecycle.NewReasonError(model.RCaptureFailed, fmt.Sprintf("probe %d failed", ev.Request.Index), ev.Err))
	}

	ctx = trace.ContextWithSpan(ctx, d.span)
	step, err := d.conv.Observe(ctx, ev.Metadata)
	if err != nil {
		return d.fail(lifecycle.NewReasonError(model.RCaptureFailed, "convergence", err))
	}
	d.span.AddEvent("probe", trace.WithAttributes(
		telemetry.ProbeAttributes(ev.Request.Index, string(ev.Metadata.AFState), string(ev.Metadata.AEState))...))
	if step.Converged {
		d.logger.Debug().
			Str(dlog.FieldRunID, d.plan.Run.ID).
			Int("probes", d.conv.Probes()).
			Msg("auto values converged")
		return d.fail(d.submitBurst(ctx, sub, d.plan.Design.Resolve(&step.Final, d.plan.Capabilities)))
	}
	if err := d.conv.CountProbe(); err != nil {
		return d.fail(err)
	}
	d.lastProbe = d.lastProbe.
		WithIndex(d.conv.Probes()).
		WithAFTrigger(step.AFTrigger).
		WithAEPrecapture(model.AEPrecaptureIdle)
	return d.fail(d.submitProbe(ctx, sub, d.lastProbe))
}

// HandleFrame counts a still frame outcome. It returns true exactly once,
// when completed plus failed frames reach the Design length.
func (d *Driver) HandleFrame(ev ports.CaptureEvent) bool {
	if !d.active || d.finished || ev.Request.Run != d.plan.Run.ID {
		return false
	}
	switch ev.Kind {
	case ports.CaptureCompleted:
		d.completed++
		metrics.FramesTotal.WithLabelValues("completed").Inc()
	case ports.CaptureFailed:
		d.failed++
		metrics.FramesTotal.WithLabelValues("failed").Inc()
	default:
		return false
	}
	if d.completed+d.failed < d.plan.Design.Len() {
		return false
	}
	d.finished = true
	d.span.SetAttributes(telemetry.OutcomeAttributes(d.completed, d.failed)...)
	d.logger.Info().
		Str(dlog.FieldRunID, d.plan.Run.ID).
		Int("completed", d.completed).
		Int("failed", d.failed).
		Msg("design frames reported")
	return true
}

// Reset ends the current run. Counters are cleared.
func (d *Driver) Reset() {
	if d.span != nil {
		d.span.End()
	}
	d.reset()
}

func (d *Driver) reset() {
	*d = Driver{policy: d.policy, tracer: d.tracer, logger: d.logger}
}

func (d *Driver) submitProbe(ctx context.Context, sub Submitter, req model.Request) error {
	metrics.ProbesTotal.WithLabelValues(string(d.conv.State())).Inc()
	if err := sub.Capture(ctx, req); err != nil {
		return lifecycle.NewReasonError(model.RCaptureFailed, fmt.Sprintf("submit probe %d", req.Index), err)
	}
	return nil
}

func (d *Driver) submitBurst(ctx context.Context, sub Submitter, resolved model.Design) error {
	targets := append(append([]model.TargetID(nil), d.plan.PreviewTargets...), d.plan.CaptureTargets...)
	processing := model.ProcessingMode("")
	if d.plan.Capabilities.ManualPostProcessing {
		processing = resolved.Processing
	}
	reqs := make([]model.Request, 0, resolved.Len())
	for i, e := range resolved.Exposures {
		s, err := e.Settings()
		if err != nil {
			return lifecycle.NewReasonError(model.RCaptureFailed, "resolve design", err)
		}
		reqs = append(reqs, model.StillRequest(d.plan.Run.ID, i, targets, s, processing))
	}
	d.resolved = resolved
	if err := sub.CaptureBurst(ctx, reqs); err != nil {
		return lifecycle.NewReasonError(model.RCaptureFailed, "submit burst", err)
	}
	d.submitted = len(reqs)
	d.span.AddEvent("burst", trace.WithAttributes(attribute.Int(telemetry.RequestsKey, len(reqs))))
	return nil
}

// fail records err on the span and resets the driver. nil passes through.
func (d *Driver) fail(err error) error {
	if err == nil {
		return nil
	}
	d.logger.Warn().Err(err).Str(dlog.FieldRunID, d.plan.Run.ID).Msg("design aborted")
	if d.span != nil {
		d.span.RecordError(err)
		d.span.SetAttributes(telemetry.ErrorAttributes(string(lifecycle.ClassifyReason(err)))...)
		d.span.SetStatus(codes.Error, err.Error())
	}
	d.Reset()
	return err
}
