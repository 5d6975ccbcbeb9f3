// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// RunInfo identifies one execution of a Design.
type RunInfo struct {
	ID         string         `json:"id"`
	Design     string         `json:"design"`
	Length     int            `json:"length"`
	Processing ProcessingMode `json:"processing"`
	Expected   int            `json:"expected"`
	StartedAt  time.Time      `json:"started_at"`
}

// CorrelationReport summarizes the end of a correlation run. Unmatched
// entries are the leftovers once every pair has been reported.
type CorrelationReport struct {
	Run               RunInfo         `json:"run"`
	Pairs             int             `json:"pairs"`
	UnmatchedMetadata []FrameMetadata `json:"unmatched_metadata,omitempty"`
	UnmatchedBuffers  []FrameID       `json:"unmatched_buffers,omitempty"`
	TimedOut          bool            `json:"timed_out"`
	Aborted           bool            `json:"aborted,omitempty"`
}
