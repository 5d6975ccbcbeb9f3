// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sink

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/devcam/internal/designs"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/metrics"
)

type recorder struct {
	pairs   int
	reports []model.CorrelationReport
}

func (r *recorder) OnPairAvailable(model.RunInfo, model.Pair)       { r.pairs++ }
func (r *recorder) OnAllPairsReported(rep model.CorrelationReport) { r.reports = append(r.reports, rep) }

type observingRecorder struct {
	recorder
	started []string
}

func (r *observingRecorder) OnRunStarted(run model.RunInfo, _ model.Design) {
	r.started = append(r.started, run.ID)
}

func counter(t *testing.T, kind, result string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.SinkWritesTotal.WithLabelValues(kind, result).Write(&m))
	return m.GetCounter().GetValue()
}

func pairOf(id model.FrameID, target model.TargetID, f model.Format) model.Pair {
	return model.Pair{
		Buffer:   model.FrameBuffer{FrameID: id, Target: target, Format: f, Width: 4, Height: 3, Data: []byte("pixels")},
		Metadata: model.FrameMetadata{FrameID: id, ExposureTime: time.Millisecond, Sensitivity: 100},
	}
}

func TestSinkWritesFramesAndMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	now := time.UnixMilli(1700000000123)
	next := &recorder{}
	s := New(dir, WithClock(func() time.Time { return now }), WithNext(next))
	before := counter(t, "frame", "ok")

	run := model.RunInfo{ID: "r1", Design: "hdr sweep", Length: 2, Expected: 4}
	s.OnPairAvailable(run, pairOf(10, "jpeg", model.FormatJPEG))
	s.OnPairAvailable(run, pairOf(20, "raw", model.FormatRAW))
	s.OnAllPairsReported(model.CorrelationReport{
		Run:               run,
		Pairs:             2,
		UnmatchedMetadata: []model.FrameMetadata{{FrameID: 30}},
		TimedOut:          true,
	})

	runDir := filepath.Join(dir, "hdr_sweep")
	assert.Equal(t, runDir, s.RunDir("hdr sweep"))
	for _, name := range []string{"hdr_sweep-1-1700000000123.jpg", "hdr_sweep-2-1700000000123.dng"} {
		data, err := os.ReadFile(filepath.Join(runDir, name))
		require.NoError(t, err, name)
		assert.Equal(t, "pixels", string(data))
	}

	raw, err := os.ReadFile(filepath.Join(runDir, "hdr_sweep_capture_metadata.json"))
	require.NoError(t, err)
	var rep Report
	require.NoError(t, json.Unmarshal(raw, &rep))
	assert.Equal(t, "r1", rep.Run.ID)
	require.Len(t, rep.Files, 2)
	assert.Equal(t, "hdr_sweep-1-1700000000123.jpg", rep.Files[0].File)
	assert.Equal(t, 1, rep.Files[0].Exposure)
	assert.Equal(t, model.FrameID(20), rep.Files[1].Metadata.FrameID)
	assert.Equal(t, 2, rep.Files[1].Exposure)
	assert.True(t, rep.TimedOut)
	require.Len(t, rep.UnmatchedMetadata, 1)
	assert.Empty(t, rep.DesignRequest)

	assert.Equal(t, 2, next.pairs)
	require.Len(t, next.reports, 1)
	assert.Equal(t, before+2, counter(t, "frame", "ok"))
}

func TestSinkNumbersBuffersByExposure(t *testing.T) {
	dir := t.TempDir()
	now := time.UnixMilli(42)
	s := New(dir, WithClock(func() time.Time { return now }))

	run := model.RunInfo{ID: "r4", Design: "raw+jpeg", Length: 2, Expected: 6}
	s.OnPairAvailable(run, pairOf(7, "raw", model.FormatRAW))
	s.OnPairAvailable(run, pairOf(7, "jpeg", model.FormatJPEG))
	s.OnPairAvailable(run, pairOf(8, "jpeg", model.FormatJPEG))
	s.OnPairAvailable(run, pairOf(8, "jpeg-small", model.FormatJPEG))
	s.OnPairAvailable(run, pairOf(8, "raw", model.FormatRAW))
	s.OnAllPairsReported(model.CorrelationReport{Run: run, Pairs: 5})

	raw, err := os.ReadFile(filepath.Join(s.RunDir(run.Design), MetadataFile(run.Design)))
	require.NoError(t, err)
	var rep Report
	require.NoError(t, json.Unmarshal(raw, &rep))

	var got []string
	for _, e := range rep.Files {
		got = append(got, e.File)
		assert.Equal(t, int(e.FrameID)-6, e.Exposure, e.File)
	}
	want := []string{
		"raw_jpeg-1-42.dng",
		"raw_jpeg-1-42.jpg",
		"raw_jpeg-2-42.jpg",
		"raw_jpeg-2-42-jpeg-small.jpg",
		"raw_jpeg-2-42.dng",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
	for _, name := range want {
		assert.FileExists(t, filepath.Join(dir, "raw_jpeg", name))
	}
}

func TestSinkWritesDesignRequest(t *testing.T) {
	dir := t.TempDir()
	next := &observingRecorder{}
	s := New(dir, WithNext(next))

	design := model.Design{
		Name:       "night",
		Processing: model.ProcessingHighQuality,
		Exposures: []model.Exposure{
			{
				ExposureTime:  model.Explicit(10 * time.Millisecond),
				Sensitivity:   model.Relative[int32](2),
				Aperture:      model.AutoParam[float32](),
				FocalLength:   model.AutoParam[float32](),
				FocusDistance: model.AutoParam[float32](),
			},
		},
	}
	run := model.RunInfo{ID: "r5", Design: "night", Length: 1, Expected: 2}
	s.OnRunStarted(run, design)
	s.OnPairAvailable(run, pairOf(1, "jpeg", model.FormatJPEG))
	s.OnAllPairsReported(model.CorrelationReport{Run: run, Pairs: 1})

	assert.Equal(t, []string{"r5"}, next.started)

	raw, err := os.ReadFile(filepath.Join(dir, "night", "night_design_request.yaml"))
	require.NoError(t, err)
	got, err := designs.Parse(raw)
	require.NoError(t, err)
	if diff := cmp.Diff(design, got); diff != "" {
		t.Errorf("design request mismatch (-want +got):\n%s", diff)
	}

	raw, err = os.ReadFile(filepath.Join(dir, "night", MetadataFile("night")))
	require.NoError(t, err)
	var rep Report
	require.NoError(t, json.Unmarshal(raw, &rep))
	assert.Equal(t, RequestFile("night"), rep.DesignRequest)
}

func TestSinkEmptyRunStillWritesReport(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	s.OnAllPairsReported(model.CorrelationReport{Run: model.RunInfo{ID: "r2", Design: "../evil"}, Aborted: true})

	raw, err := os.ReadFile(filepath.Join(s.RunDir("../evil"), MetadataFile("../evil")))
	require.NoError(t, err)
	var rep Report
	require.NoError(t, json.Unmarshal(raw, &rep))
	assert.True(t, rep.Aborted)
	assert.Empty(t, rep.Files)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsDir())

	entries, err = os.ReadDir(s.RunDir("../evil"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSinkWriteFailureIsCounted(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	s := New(filepath.Join(blocker, "sub"))
	before := counter(t, "frame", "error")

	s.OnPairAvailable(model.RunInfo{ID: "r3", Design: "d"}, pairOf(1, "jpeg", model.FormatJPEG))
	assert.Equal(t, before+1, counter(t, "frame", "error"))
}
