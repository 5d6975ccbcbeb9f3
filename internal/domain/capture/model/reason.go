// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// ReasonCode is a stable machine-readable failure code.
type ReasonCode string

const (
	RUnknown                ReasonCode = "UNKNOWN"
	RDeviceUnavailable      ReasonCode = "DEVICE_UNAVAILABLE"
	RGateTimeout            ReasonCode = "GATE_TIMEOUT"
	RInvalidTarget          ReasonCode = "INVALID_TARGET"
	RNoOutputTargets        ReasonCode = "NO_OUTPUT_TARGETS"
	RInadequateDevice       ReasonCode = "INADEQUATE_DEVICE"
	RSessionConfigureFailed ReasonCode = "SESSION_CONFIGURE_FAILED"
	RCaptureFailed          ReasonCode = "CAPTURE_FAILED"
	RConvergenceExhausted   ReasonCode = "CONVERGENCE_EXHAUSTED"
	REmptyDesign            ReasonCode = "EMPTY_DESIGN"
	RDesignTooLong          ReasonCode = "DESIGN_TOO_LONG"
	RNotReady               ReasonCode = "NOT_READY"
	RDeviceDisconnected     ReasonCode = "DEVICE_DISCONNECTED"
	RDeviceError            ReasonCode = "DEVICE_ERROR"
	RClosed                 ReasonCode = "CLOSED"
)
