// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"fmt"
	"strings"
)

// ProcessingMode selects the device post-processing applied to a Design.
type ProcessingMode string

const (
	ProcessingNone        ProcessingMode = "none"
	ProcessingFast        ProcessingMode = "fast"
	ProcessingHighQuality ProcessingMode = "high_quality"
)

// ParseProcessingMode accepts the canonical names case-insensitively.
// An empty string maps to ProcessingNone.
func ParseProcessingMode(s string) (ProcessingMode, error) {
	switch ProcessingMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProcessingNone:
		return ProcessingNone, nil
	case ProcessingFast:
		return ProcessingFast, nil
	case ProcessingHighQuality, "high-quality", "hq":
		return ProcessingHighQuality, nil
	}
	return "", fmt.Errorf("unknown processing mode %q", s)
}

// MaxExposures caps the length of a Design. Correlation keeps every frame
// of a run in memory until the run is reported.
const MaxExposures = 256

// Design is an ordered list of exposures to capture as one sequence.
type Design struct {
	Name       string         `json:"name" yaml:"name"`
	Exposures  []Exposure     `json:"exposures" yaml:"exposures"`
	Processing ProcessingMode `json:"processing,omitempty" yaml:"processing,omitempty"`
}

// Len returns the number of exposures.
func (d Design) Len() int { return len(d.Exposures) }

// NeedsFocus reports whether any exposure has an auto focus distance.
func (d Design) NeedsFocus() bool {
	for _, e := range d.Exposures {
		if e.NeedsFocus() {
			return true
		}
	}
	return false
}

// NeedsExposure reports whether any exposure has an auto exposure time,
// sensitivity or aperture.
func (d Design) NeedsExposure() bool {
	for _, e := range d.Exposures {
		if e.NeedsExposure() {
			return true
		}
	}
	return false
}

// HasAuto reports whether any field of any exposure is auto.
func (d Design) HasAuto() bool {
	for _, e := range d.Exposures {
		if e.HasAuto() {
			return true
		}
	}
	return false
}

// Resolve returns a copy whose exposures are all explicit.
func (d Design) Resolve(md *FrameMetadata, caps Capabilities) Design {
	out := Design{Name: d.Name, Processing: d.Processing, Exposures: make([]Exposure, len(d.Exposures))}
	for i, e := range d.Exposures {
		out.Exposures[i] = e.Resolve(md, caps)
	}
	return out
}

// Clone returns a deep copy.
func (d Design) Clone() Design {
	out := d
	out.Exposures = append([]Exposure(nil), d.Exposures...)
	return out
}
