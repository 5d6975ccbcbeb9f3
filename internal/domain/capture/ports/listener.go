// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"github.com/rs/zerolog"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
	dlog "github.com/ManuGH/devcam/internal/log"
)

// Listener receives lifecycle and capture notifications. Calls arrive on the
// manager's worker goroutines and must not block.
type Listener interface {
	OnReady(postProcessing bool)
	OnDeviceError(err error)
	OnAutoResults(md model.FrameMetadata)
	OnCaptureStarted(id model.FrameID)
	OnCaptureCompleted(md model.FrameMetadata)
	OnCaptureFailed(err error)
	OnSequenceCompleted(run model.RunInfo)
}

// PairHandler receives correlated pairs. OnAllPairsReported is called exactly
// once per run, after the last OnPairAvailable.
type PairHandler interface {
	OnPairAvailable(run model.RunInfo, pair model.Pair)
	OnAllPairsReported(report model.CorrelationReport)
}

// RunObserver is implemented by a PairHandler that needs the Design of a run.
// OnRunStarted is called once the run is accepted, before any of its pairs.
type RunObserver interface {
	OnRunStarted(run model.RunInfo, design model.Design)
}

// LogListener implements Listener and PairHandler by logging. Embed it to
// pick up default behavior for callbacks you do not care about.
type LogListener struct {
	Logger zerolog.Logger
}

var (
	_ Listener    = LogListener{}
	_ PairHandler = LogListener{}
)

func (l LogListener) OnReady(postProcessing bool) {
	l.Logger.Info().Str(dlog.FieldEvent, "capture.ready").Bool(dlog.FieldPostProcessing, postProcessing).Msg("capture session ready")
}

func (l LogListener) OnDeviceError(err error) {
	l.Logger.Error().Err(err).Str(dlog.FieldEvent, "device.error").Msg("device error")
}

func (l LogListener) OnAutoResults(md model.FrameMetadata) {
	l.Logger.Trace().
		Int64(dlog.FieldFrameID, int64(md.FrameID)).
		Str(dlog.FieldAFState, string(md.AFState)).
		Str(dlog.FieldAEState, string(md.AEState)).
		Msg("auto results")
}

func (l LogListener) OnCaptureStarted(id model.FrameID) {
	l.Logger.Debug().Int64(dlog.FieldFrameID, int64(id)).Msg("capture started")
}

func (l LogListener) OnCaptureCompleted(md model.FrameMetadata) {
	l.Logger.Debug().Int64(dlog.FieldFrameID, int64(md.FrameID)).Msg("capture completed")
}

func (l LogListener) OnCaptureFailed(err error) {
	l.Logger.Warn().Err(err).Msg("capture failed")
}

func (l LogListener) OnSequenceCompleted(run model.RunInfo) {
	l.Logger.Info().
		Str(dlog.FieldEvent, "capture.sequence_completed").
		Str(dlog.FieldRunID, run.ID).
		Str(dlog.FieldDesign, run.Design).
		Msg("sequence completed")
}

func (l LogListener) OnPairAvailable(run model.RunInfo, pair model.Pair) {
	l.Logger.Debug().
		Str(dlog.FieldRunID, run.ID).
		Int64(dlog.FieldFrameID, int64(pair.Metadata.FrameID)).
		Str(dlog.FieldTargetID, string(pair.Buffer.Target)).
		Msg("pair available")
}

func (l LogListener) OnAllPairsReported(report model.CorrelationReport) {
	l.Logger.Info().
		Str(dlog.FieldEvent, "capture.correlated").
		Str(dlog.FieldRunID, report.Run.ID).
		Int(dlog.FieldPairs, report.Pairs).
		Int(dlog.FieldUnmatchedMetadata, len(report.UnmatchedMetadata)).
		Int(dlog.FieldUnmatchedBuffers, len(report.UnmatchedBuffers)).
		Bool(dlog.FieldTimedOut, report.TimedOut).
		Msg("all pairs reported")
}
