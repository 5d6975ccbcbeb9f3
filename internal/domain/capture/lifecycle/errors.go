// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package lifecycle defines the capture manager phases, the allowed
// transitions between them, and the error taxonomy.
package lifecycle

import (
	"errors"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
)

// Error classes. Match with errors.Is; ReasonFromError gives the exact code.
var (
	ErrResourceUnavailable    = errors.New("resource unavailable")
	ErrCapabilityMissing      = errors.New("capability missing")
	ErrSessionConfigureFailed = errors.New("session configure failed")
	ErrCaptureFailed          = errors.New("capture failed")
	ErrPrecondition           = errors.New("precondition failed")
	ErrDeviceLost             = errors.New("device lost")
	ErrClosed                 = errors.New("capture manager closed")
	ErrUnknown                = errors.New("unknown capture error")
)

// ReasonErrorClass maps a reason code to its class sentinel.
func ReasonErrorClass(reason model.ReasonCode) error {
	switch reason {
	case model.RDeviceUnavailable, model.RGateTimeout, model.RInvalidTarget, model.RNoOutputTargets:
		return ErrResourceUnavailable
	case model.RInadequateDevice:
		return ErrCapabilityMissing
	case model.RSessionConfigureFailed:
		return ErrSessionConfigureFailed
	case model.RCaptureFailed, model.RConvergenceExhausted:
		return ErrCaptureFailed
	case model.REmptyDesign, model.RDesignTooLong, model.RNotReady:
		return ErrPrecondition
	case model.RDeviceDisconnected, model.RDeviceError:
		return ErrDeviceLost
	case model.RClosed:
		return ErrClosed
	case "":
		return nil
	default:
		return ErrUnknown
	}
}
