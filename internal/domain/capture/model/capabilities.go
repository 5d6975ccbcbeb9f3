// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// Capabilities describes what a device supports.
type Capabilities struct {
	ManualSensor         bool                 `json:"manual_sensor"`
	ManualPostProcessing bool                 `json:"manual_post_processing"`
	ExposureTimeRange    Range[time.Duration] `json:"exposure_time_range"`
	SensitivityRange     Range[int32]         `json:"sensitivity_range"`
	ApertureValues       []float32            `json:"aperture_values,omitempty"`
	FocalLengths         []float32            `json:"focal_lengths,omitempty"`
	// MinFocusDistance is the closest focus in diopters; 0 means fixed focus.
	MinFocusDistance float32 `json:"min_focus_distance"`
}

// Defaults returns the values used to resolve auto fields when no probe
// metadata is available.
func (c Capabilities) Defaults() FrameMetadata {
	md := FrameMetadata{
		ExposureTime: c.ExposureTimeRange.Min,
		Sensitivity:  c.SensitivityRange.Min,
	}
	if len(c.ApertureValues) > 0 {
		md.Aperture = c.ApertureValues[0]
	}
	if len(c.FocalLengths) > 0 {
		md.FocalLength = c.FocalLengths[0]
	}
	return md
}
