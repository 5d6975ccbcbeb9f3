// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCaps() Capabilities {
	return Capabilities{
		ManualSensor:      true,
		ExposureTimeRange: Range[time.Duration]{Min: 100 * time.Microsecond, Max: time.Second},
		SensitivityRange:  Range[int32]{Min: 50, Max: 3200},
		ApertureValues:    []float32{1.8},
		FocalLengths:      []float32{4.3, 6.0},
		MinFocusDistance:  10,
	}
}

func TestDesignClassification(t *testing.T) {
	explicit := Exposure{
		ExposureTime:  Explicit(10 * time.Millisecond),
		Sensitivity:   Explicit[int32](100),
		Aperture:      Explicit[float32](1.8),
		FocalLength:   Explicit[float32](4.3),
		FocusDistance: Explicit[float32](0),
	}
	focus := explicit
	focus.FocusDistance = AutoParam[float32]()
	expo := explicit
	expo.Sensitivity = AutoParam[int32]()
	focal := explicit
	focal.FocalLength = AutoParam[float32]()

	tests := []struct {
		name                      string
		d                         Design
		needFocus, needExp, hasAu bool
	}{
		{"explicit", Design{Exposures: []Exposure{explicit}}, false, false, false},
		{"focus", Design{Exposures: []Exposure{explicit, focus}}, true, false, true},
		{"exposure", Design{Exposures: []Exposure{expo}}, false, true, true},
		{"focal only", Design{Exposures: []Exposure{focal}}, false, false, true},
		{"all auto", Design{Exposures: []Exposure{AutoExposure()}}, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.needFocus, tt.d.NeedsFocus())
			assert.Equal(t, tt.needExp, tt.d.NeedsExposure())
			assert.Equal(t, tt.hasAu, tt.d.HasAuto())
		})
	}
}

func TestResolveFromMetadata(t *testing.T) {
	e := Exposure{
		ExposureTime:  Relative[time.Duration](2),
		Sensitivity:   AutoParam[int32](),
		Aperture:      Explicit[float32](2.4),
		FocalLength:   AutoParam[float32](),
		FocusDistance: AutoParam[float32](),
	}
	md := &FrameMetadata{
		ExposureTime:  20 * time.Millisecond,
		Sensitivity:   400,
		Aperture:      1.8,
		FocalLength:   6.0,
		FocusDistance: 2.5,
	}

	got := e.Resolve(md, testCaps())
	require.False(t, got.HasAuto())

	s, err := got.Settings()
	require.NoError(t, err)
	assert.Equal(t, ExposureSettings{
		ExposureTime:  40 * time.Millisecond,
		Sensitivity:   400,
		Aperture:      2.4,
		FocalLength:   6.0,
		FocusDistance: 2.5,
	}, s)
}

func TestResolveClampsToDeviceRange(t *testing.T) {
	e := Exposure{
		ExposureTime:  Relative[time.Duration](100),
		Sensitivity:   Relative[int32](0.01),
		Aperture:      Explicit[float32](1.8),
		FocalLength:   Explicit[float32](4.3),
		FocusDistance: Relative[float32](10),
	}
	md := &FrameMetadata{ExposureTime: 50 * time.Millisecond, Sensitivity: 100, FocusDistance: 5}

	got := e.Resolve(md, testCaps())
	assert.Equal(t, time.Second, got.ExposureTime.Value)
	assert.Equal(t, int32(50), got.Sensitivity.Value)
	assert.Equal(t, float32(10), got.FocusDistance.Value)
}

func TestParamResolveSaturates(t *testing.T) {
	assert.Equal(t, time.Duration(math.MaxInt64), Relative[time.Duration](math.Inf(1)).Resolve(10*time.Millisecond).Value)
	assert.Equal(t, time.Duration(math.MaxInt64), Relative[time.Duration](1e30).Resolve(10*time.Millisecond).Value)
	assert.Equal(t, time.Duration(0), Relative[time.Duration](math.NaN()).Resolve(10*time.Millisecond).Value)

	assert.Equal(t, int32(math.MaxInt32), Relative[int32](1e30).Resolve(100).Value)
	assert.Equal(t, int32(math.MaxInt32), Relative[int32](math.Inf(1)).Resolve(100).Value)
	assert.Equal(t, int32(0), Relative[int32](math.NaN()).Resolve(100).Value)

	assert.Equal(t, float32(math.MaxFloat32), Relative[float32](math.Inf(1)).Resolve(2.4).Value)
	assert.Equal(t, float32(0), Relative[float32](math.NaN()).Resolve(2.4).Value)
}

func TestResolveHugeFactorStaysInDeviceRange(t *testing.T) {
	e := Exposure{
		ExposureTime:  Relative[time.Duration](1e30),
		Sensitivity:   Relative[int32](1e30),
		Aperture:      Relative[float32](math.NaN()),
		FocalLength:   Explicit[float32](4.3),
		FocusDistance: Explicit[float32](1),
	}
	md := &FrameMetadata{ExposureTime: 50 * time.Millisecond, Sensitivity: 100, Aperture: 2.4}

	got := e.Resolve(md, testCaps())
	assert.Equal(t, time.Second, got.ExposureTime.Value)
	assert.Equal(t, testCaps().SensitivityRange.Max, got.Sensitivity.Value)
	assert.False(t, math.IsNaN(float64(got.Aperture.Value)))
	assert.GreaterOrEqual(t, got.Aperture.Value, float32(0))
}

func TestResolveWithoutMetadataUsesCapabilities(t *testing.T) {
	e := Exposure{
		ExposureTime:  Explicit(time.Millisecond),
		Sensitivity:   Explicit[int32](100),
		Aperture:      Explicit[float32](1.8),
		FocalLength:   AutoParam[float32](),
		FocusDistance: Explicit[float32](1),
	}
	got := e.Resolve(nil, testCaps())
	assert.Equal(t, float32(4.3), got.FocalLength.Value)
}

func TestSettingsRejectsAuto(t *testing.T) {
	_, err := AutoExposure().Settings()
	require.Error(t, err)
}

func TestExpectedEvents(t *testing.T) {
	yuv := TargetSpec{ID: "yuv", Format: FormatYUV}
	raw := TargetSpec{ID: "raw", Format: FormatRAW, BuffersPerExposure: 2}

	assert.Equal(t, 6, ExpectedEvents(3, []TargetSpec{yuv}))
	assert.Equal(t, 12, ExpectedEvents(3, []TargetSpec{yuv, raw}))
	assert.Equal(t, 0, ExpectedEvents(0, []TargetSpec{yuv}))
}

func TestRequestBuildersDoNotAlias(t *testing.T) {
	ids := []TargetID{"a", "b"}
	r := PreviewRequest(ids)
	ids[0] = "z"
	assert.Equal(t, TargetID("a"), r.Targets[0])

	r2 := r.WithAFTrigger(AFTriggerStart)
	r2.Targets[1] = "y"
	assert.Equal(t, AFTriggerIdle, r.AFTrigger)
	assert.Equal(t, TargetID("b"), r.Targets[1])
}

func TestRestoreRequestCancelsFocus(t *testing.T) {
	r := RestoreRequest([]TargetID{"p"})
	assert.Equal(t, TagRestore, r.Tag)
	assert.Equal(t, AFTriggerCancel, r.AFTrigger)
	assert.False(t, r.AELock)
}

func TestParseProcessingMode(t *testing.T) {
	for in, want := range map[string]ProcessingMode{
		"":             ProcessingNone,
		"NONE":         ProcessingNone,
		"fast":         ProcessingFast,
		"high_quality": ProcessingHighQuality,
		"hq":           ProcessingHighQuality,
	} {
		got, err := ParseProcessingMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseProcessingMode("ultra")
	require.Error(t, err)
}

func TestParamString(t *testing.T) {
	assert.Equal(t, "auto", AutoParam[int32]().String())
	assert.Equal(t, "auto*0.5", Relative[int32](0.5).String())
	assert.Equal(t, "100", Explicit[int32](100).String())
}
