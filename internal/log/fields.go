// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID         = "run_id"
	FieldCorrelationID = "correlation_id"
	FieldRequestID     = "request_id"
	FieldDeviceID      = "device_id"
	FieldFrameID       = "frame_id"
	FieldTargetID      = "target_id"
	FieldTraceID       = "trace_id"
	FieldSpanID        = "span_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldReason    = "reason"

	// Capture fields
	FieldDesign     = "design"
	FieldExposures  = "exposures"
	FieldIndex      = "index"
	FieldTag        = "tag"
	FieldProcessing = "processing"
	FieldExpected   = "expected"
	FieldPairs      = "pairs"
	FieldAFState    = "af_state"
	FieldAEState    = "ae_state"

	// Correlation fields
	FieldPostProcessing    = "post_processing"
	FieldUnmatchedMetadata = "unmatched_metadata"
	FieldUnmatchedBuffers  = "unmatched_buffers"
	FieldTimedOut          = "timed_out"

	// State fields
	FieldPhase    = "phase"
	FieldState    = "state"
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"
)
