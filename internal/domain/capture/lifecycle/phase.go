// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

// Phase is the manager's externally visible state.
type Phase string

const (
	PhaseClosed      Phase = "closed"
	PhaseOpened      Phase = "opened"
	PhaseConfiguring Phase = "configuring"
	PhaseReady       Phase = "ready"
	PhaseCapturing   Phase = "capturing"
	PhaseCorrelating Phase = "correlating"
	PhaseFailed      Phase = "failed"
)

// HoldsDevice reports whether the phase owns an open device.
func (p Phase) HoldsDevice() bool {
	return p != PhaseClosed
}

// AcceptsCapture reports whether a new Design may start.
func (p Phase) AcceptsCapture() bool {
	return p == PhaseReady
}

// Busy reports whether a Design is executing or being correlated.
func (p Phase) Busy() bool {
	return p == PhaseCapturing || p == PhaseCorrelating
}
