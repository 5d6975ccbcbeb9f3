// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
	dlog "github.com/ManuGH/devcam/internal/log"
)

func logLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestLogListenerUsesCanonicalFields(t *testing.T) {
	var buf bytes.Buffer
	l := LogListener{Logger: zerolog.New(&buf).Level(zerolog.TraceLevel)}
	run := model.RunInfo{ID: "run-1", Design: "night"}

	l.OnReady(true)
	l.OnDeviceError(errors.New("gone"))
	l.OnAutoResults(model.FrameMetadata{FrameID: 3, AFState: model.AFFocusedLocked, AEState: model.AEConverged})
	l.OnCaptureStarted(4)
	l.OnCaptureCompleted(model.FrameMetadata{FrameID: 4})
	l.OnSequenceCompleted(run)
	l.OnPairAvailable(run, model.Pair{Buffer: model.FrameBuffer{FrameID: 4, Target: "jpeg-0"}, Metadata: model.FrameMetadata{FrameID: 4}})
	l.OnAllPairsReported(model.CorrelationReport{Run: run, Pairs: 2, TimedOut: true})

	lines := logLines(t, &buf)
	require.Len(t, lines, 8)

	tests := []struct {
		line int
		want map[string]any
	}{
		{0, map[string]any{dlog.FieldEvent: "capture.ready", dlog.FieldPostProcessing: true}},
		{1, map[string]any{dlog.FieldEvent: "device.error"}},
		{2, map[string]any{dlog.FieldFrameID: float64(3), dlog.FieldAFState: string(model.AFFocusedLocked), dlog.FieldAEState: string(model.AEConverged)}},
		{3, map[string]any{dlog.FieldFrameID: float64(4)}},
		{4, map[string]any{dlog.FieldFrameID: float64(4)}},
		{5, map[string]any{dlog.FieldEvent: "capture.sequence_completed", dlog.FieldRunID: "run-1", dlog.FieldDesign: "night"}},
		{6, map[string]any{dlog.FieldRunID: "run-1", dlog.FieldFrameID: float64(4), dlog.FieldTargetID: "jpeg-0"}},
		{7, map[string]any{dlog.FieldEvent: "capture.correlated", dlog.FieldRunID: "run-1", dlog.FieldPairs: float64(2), dlog.FieldTimedOut: true}},
	}
	for _, tt := range tests {
		for k, v := range tt.want {
			assert.Equal(t, v, lines[tt.line][k], "line %d key %s", tt.line, k)
		}
	}
}
