// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package sim is a deterministic in-process imaging device. It reports
// every outcome asynchronously from its own goroutine, like real hardware.
package sim

import (
	"slices"
	"time"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
)

// Faults injects failures into a simulated device.
type Faults struct {
	// FailConfigure makes the first n session configurations fail.
	FailConfigure int
	// FailStills lists still indices whose capture fails.
	FailStills []int
	// DropBuffers lists still indices whose buffers are never delivered.
	DropBuffers []int
	// FailProbes makes every convergence probe fail.
	FailProbes bool
}

// Config describes a simulated device.
type Config struct {
	Capabilities model.Capabilities
	// Auto is what the device's auto algorithms settle on.
	Auto model.FrameMetadata
	// AFSequence and AESequence are reported by successive probes of one
	// Design. The last entry repeats once a sequence is exhausted.
	AFSequence []model.AFState
	AESequence []model.AEState

	ConfigureDelay time.Duration
	FrameDuration  time.Duration
	// PreviewInterval paces the repeating request. Zero disables it.
	PreviewInterval time.Duration

	Faults Faults
}

// DefaultConfig returns a capable device whose probes converge at once.
func DefaultConfig() Config {
	return Config{
		Capabilities: model.Capabilities{
			ManualSensor:         true,
			ManualPostProcessing: true,
			ExposureTimeRange:    model.Range[time.Duration]{Min: 10 * time.Microsecond, Max: 500 * time.Millisecond},
			SensitivityRange:     model.Range[int32]{Min: 50, Max: 3200},
			ApertureValues:       []float32{1.8},
			FocalLengths:         []float32{4.38},
			MinFocusDistance:     10,
		},
		Auto: model.FrameMetadata{
			ExposureTime:  10 * time.Millisecond,
			Sensitivity:   100,
			Aperture:      1.8,
			FocalLength:   4.38,
			FocusDistance: 1,
		},
		AFSequence:      []model.AFState{model.AFFocusedLocked},
		AESequence:      []model.AEState{model.AEConverged},
		ConfigureDelay:  5 * time.Millisecond,
		FrameDuration:   time.Millisecond,
		PreviewInterval: 100 * time.Millisecond,
	}
}

func (f Faults) failsStill(i int) bool   { return slices.Contains(f.FailStills, i) }
func (f Faults) dropsBuffers(i int) bool { return slices.Contains(f.DropBuffers, i) }
