// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ports

import "github.com/ManuGH/devcam/internal/domain/capture/model"

// Events bundles the typed channels a device reports on. Each channel is
// strictly ordered; the device never closes them.
type Events struct {
	Device  chan<- DeviceEvent
	Session chan<- SessionEvent
	Capture chan<- CaptureEvent
}

type DeviceEventKind string

const (
	DeviceDisconnected DeviceEventKind = "device_disconnected"
	DeviceFailed       DeviceEventKind = "device_error"
)

// DeviceEvent reports loss of the device.
type DeviceEvent struct {
	Kind     DeviceEventKind
	DeviceID string
	Err      error
}

type SessionEventKind string

const (
	SessionConfigured      SessionEventKind = "session_configured"
	SessionConfigureFailed SessionEventKind = "session_configure_failed"
	SessionClosed          SessionEventKind = "session_closed"
)

// SessionEvent reports the outcome of CreateSession or the end of a session.
type SessionEvent struct {
	Kind      SessionEventKind
	SessionID string
	Err       error
}

type CaptureEventKind string

const (
	CaptureStarted   CaptureEventKind = "capture_started"
	CaptureCompleted CaptureEventKind = "capture_completed"
	CaptureFailed    CaptureEventKind = "capture_failed"
)

// CaptureEvent reports progress of one request. Request is the submitted
// value, echoed back so the receiver can route by tag and run.
type CaptureEvent struct {
	Kind      CaptureEventKind
	SessionID string
	Request   model.Request
	FrameID   model.FrameID
	Metadata  model.FrameMetadata
	Err       error
}
