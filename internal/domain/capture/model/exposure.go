// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"time"
)

// Exposure is one parameterized frame of a Design.
type Exposure struct {
	ExposureTime  Param[time.Duration] `json:"exposure_time" yaml:"exposure_time"`
	Sensitivity   Param[int32]         `json:"sensitivity" yaml:"sensitivity"`
	Aperture      Param[float32]       `json:"aperture" yaml:"aperture"`
	FocalLength   Param[float32]       `json:"focal_length" yaml:"focal_length"`
	FocusDistance Param[float32]       `json:"focus_distance" yaml:"focus_distance"`
}

// AutoExposure returns an exposure with every field auto.
func AutoExposure() Exposure {
	return Exposure{
		ExposureTime:  AutoParam[time.Duration](),
		Sensitivity:   AutoParam[int32](),
		Aperture:      AutoParam[float32](),
		FocalLength:   AutoParam[float32](),
		FocusDistance: AutoParam[float32](),
	}
}

// NeedsFocus reports whether the focus distance must be resolved by the device.
func (e Exposure) NeedsFocus() bool { return e.FocusDistance.Auto }

// NeedsExposure reports whether exposure time, sensitivity or aperture must
// be resolved by the device.
func (e Exposure) NeedsExposure() bool {
	return e.ExposureTime.Auto || e.Sensitivity.Auto || e.Aperture.Auto
}

// HasAuto reports whether any field is auto.
func (e Exposure) HasAuto() bool {
	return e.NeedsFocus() || e.NeedsExposure() || e.FocalLength.Auto
}

// Resolve returns a fully explicit copy. Auto fields take their base value
// from md; with md nil they fall back to the capability defaults. Results are
// clamped to the device ranges.
func (e Exposure) Resolve(md *FrameMetadata, caps Capabilities) Exposure {
	var obs FrameMetadata
	if md != nil {
		obs = *md
	} else {
		obs = caps.Defaults()
	}
	out := Exposure{
		ExposureTime:  e.ExposureTime.Resolve(obs.ExposureTime),
		Sensitivity:   e.Sensitivity.Resolve(obs.Sensitivity),
		Aperture:      e.Aperture.Resolve(obs.Aperture),
		FocalLength:   e.FocalLength.Resolve(obs.FocalLength),
		FocusDistance: e.FocusDistance.Resolve(obs.FocusDistance),
	}
	if e.ExposureTime.Auto {
		out.ExposureTime.Value = caps.ExposureTimeRange.Clamp(out.ExposureTime.Value)
	}
	if e.Sensitivity.Auto {
		out.Sensitivity.Value = caps.SensitivityRange.Clamp(out.Sensitivity.Value)
	}
	if e.FocusDistance.Auto {
		out.FocusDistance.Value = Range[float32]{Min: 0, Max: caps.MinFocusDistance}.Clamp(out.FocusDistance.Value)
	}
	return out
}

// Settings converts an explicit exposure to device settings. It fails when
// any field is still auto.
func (e Exposure) Settings() (ExposureSettings, error) {
	if e.HasAuto() {
		return ExposureSettings{}, fmt.Errorf("exposure %s has unresolved auto fields", e)
	}
	return ExposureSettings{
		ExposureTime:  e.ExposureTime.Value,
		Sensitivity:   e.Sensitivity.Value,
		Aperture:      e.Aperture.Value,
		FocalLength:   e.FocalLength.Value,
		FocusDistance: e.FocusDistance.Value,
	}, nil
}

func (e Exposure) String() string {
	return fmt.Sprintf("t=%s iso=%s f/%s fl=%s fd=%s",
		e.ExposureTime, e.Sensitivity, e.Aperture, e.FocalLength, e.FocusDistance)
}

// ExposureSettings are the explicit values a manual request carries.
type ExposureSettings struct {
	ExposureTime  time.Duration `json:"exposure_time"`
	Sensitivity   int32         `json:"sensitivity"`
	Aperture      float32       `json:"aperture"`
	FocalLength   float32       `json:"focal_length"`
	FocusDistance float32       `json:"focus_distance"`
}
