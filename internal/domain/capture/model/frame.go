// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// FrameID is the device timestamp of a frame in nanoseconds. It is the
// correlation key between metadata and buffers.
type FrameID int64

// AFState is the device autofocus state reported with each frame.
type AFState string

const (
	AFInactive         AFState = "INACTIVE"
	AFPassiveScan      AFState = "PASSIVE_SCAN"
	AFPassiveFocused   AFState = "PASSIVE_FOCUSED"
	AFPassiveUnfocused AFState = "PASSIVE_UNFOCUSED"
	AFActiveScan       AFState = "ACTIVE_SCAN"
	AFFocusedLocked    AFState = "FOCUSED_LOCKED"
	AFNotFocusedLocked AFState = "NOT_FOCUSED_LOCKED"
)

// AEState is the device auto-exposure state reported with each frame.
type AEState string

const (
	AEInactive      AEState = "INACTIVE"
	AESearching     AEState = "SEARCHING"
	AEConverged     AEState = "CONVERGED"
	AELocked        AEState = "LOCKED"
	AEFlashRequired AEState = "FLASH_REQUIRED"
	AEPrecapture    AEState = "PRECAPTURE"
)

// FrameMetadata is the device-reported result of one capture.
type FrameMetadata struct {
	FrameID       FrameID           `json:"frame_id"`
	ExposureTime  time.Duration     `json:"exposure_time"`
	Sensitivity   int32             `json:"sensitivity"`
	Aperture      float32           `json:"aperture"`
	FocalLength   float32           `json:"focal_length"`
	FocusDistance float32           `json:"focus_distance"`
	AFState       AFState           `json:"af_state,omitempty"`
	AEState       AEState           `json:"ae_state,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// Format is the pixel format of a target and its buffers.
type Format string

const (
	FormatYUV  Format = "yuv"
	FormatJPEG Format = "jpeg"
	FormatRAW  Format = "raw"
)

// Extension returns the file extension used when persisting a buffer.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatRAW:
		return ".dng"
	default:
		return ".yuv"
	}
}

// FrameBuffer is one image buffer delivered by a target.
type FrameBuffer struct {
	FrameID FrameID
	Target  TargetID
	Format  Format
	Width   int
	Height  int
	Data    []byte
}

// Pair is a matched (buffer, metadata) couple.
type Pair struct {
	Buffer   FrameBuffer
	Metadata FrameMetadata
}
