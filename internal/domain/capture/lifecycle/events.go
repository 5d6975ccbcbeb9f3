// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

// EventKind drives phase transitions.
type EventKind string

const (
	EvOpened            EventKind = "opened"
	EvRebuildRequested  EventKind = "rebuild_requested"
	EvConfigured        EventKind = "configured"
	EvConfigureFailed   EventKind = "configure_failed"
	EvCaptureStarted    EventKind = "capture_started"
	EvSequenceCompleted EventKind = "sequence_completed"
	EvCaptureAborted    EventKind = "capture_aborted"
	EvCorrelationDone   EventKind = "correlation_done"
	EvDeviceLost        EventKind = "device_lost"
	EvClosed            EventKind = "closed"
)
