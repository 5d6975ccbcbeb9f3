// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ports defines the contracts between the capture core, the device
// adapter, and the caller.
package ports

import (
	"context"
	"errors"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
)

var (
	// ErrDeviceBusy is returned by Open when another owner holds the device.
	ErrDeviceBusy = errors.New("device busy")
	// ErrDeviceNotFound is returned by Open for an unknown device id.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrSessionClosed is returned by operations on a closed capture session.
	ErrSessionClosed = errors.New("capture session closed")
)

// DeviceOpener opens a device by id. Open is synchronous; everything that
// happens afterwards is reported through the Events channels.
type DeviceOpener interface {
	Open(ctx context.Context, id string, ev Events) (Device, error)
}

// Device is an exclusively held imaging device.
type Device interface {
	ID() string
	Capabilities() model.Capabilities
	// CreateSession starts configuring a capture session for targets. The
	// outcome arrives later as a SessionEvent carrying the returned id.
	CreateSession(ctx context.Context, targets []Target) (CaptureSession, error)
	Close() error
}

// CaptureSession submits requests against one configured target set.
type CaptureSession interface {
	ID() string
	Capture(ctx context.Context, req model.Request) error
	CaptureBurst(ctx context.Context, reqs []model.Request) error
	SetRepeating(ctx context.Context, req model.Request) error
	StopRepeating() error
	Close() error
}

// Target is an output surface a session writes buffers to. A target can
// become invalid after it was handed to the manager.
type Target interface {
	Spec() model.TargetSpec
	Valid() bool
}

// ImageSink receives buffers produced by targets.
type ImageSink interface {
	BufferAvailable(buf model.FrameBuffer)
}

// Specs returns the descriptors of targets.
func Specs(targets []Target) []model.TargetSpec {
	out := make([]model.TargetSpec, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Spec())
	}
	return out
}

// IDs returns the ids of targets in order.
func IDs(targets []Target) []model.TargetID {
	out := make([]model.TargetID, 0, len(targets))
	for _, t := range targets {
		out = append(out, t.Spec().ID)
	}
	return out
}
