// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// TargetID identifies an output target.
type TargetID string

// TargetSpec describes an output target. BuffersPerExposure declares how
// many buffers the target delivers per exposure; zero means one.
type TargetSpec struct {
	ID                 TargetID `json:"id" yaml:"id"`
	Format             Format   `json:"format" yaml:"format"`
	Width              int      `json:"width" yaml:"width"`
	Height             int      `json:"height" yaml:"height"`
	BuffersPerExposure int      `json:"buffers_per_exposure,omitempty" yaml:"buffers_per_exposure,omitempty"`
}

// Multiplicity returns the effective buffers-per-exposure count.
func (t TargetSpec) Multiplicity() int {
	if t.BuffersPerExposure < 1 {
		return 1
	}
	return t.BuffersPerExposure
}

// ExpectedEvents returns the number of correlator events for a Design of n
// exposures delivered to the given capture targets: one metadata entry per
// exposure plus every declared buffer.
func ExpectedEvents(n int, targets []TargetSpec) int {
	per := 0
	for _, t := range targets {
		per += t.Multiplicity()
	}
	return n + n*per
}
