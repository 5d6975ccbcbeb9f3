// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"github.com/ManuGH/devcam/internal/domain/capture/driver"
	"github.com/ManuGH/devcam/internal/domain/capture/lifecycle"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
)

// Status is a point-in-time snapshot of the manager.
type Status struct {
	Phase          lifecycle.Phase    `json:"phase"`
	DeviceID       string             `json:"device_id,omitempty"`
	PostProcessing bool               `json:"post_processing"`
	Capabilities   model.Capabilities `json:"capabilities"`
	Rebuilding     bool               `json:"rebuilding"`
	PreviewTargets []model.TargetSpec `json:"preview_targets"`
	CaptureTargets []model.TargetSpec `json:"capture_targets"`
	Run            *model.RunInfo     `json:"run,omitempty"`
	Driver         driver.Stats       `json:"driver"`
	Tuning         Tuning             `json:"tuning"`
}

// Status returns the latest snapshot. Safe from any goroutine.
func (m *Manager) Status() Status {
	if s := m.status.Load(); s != nil {
		return *s
	}
	return Status{Phase: lifecycle.PhaseClosed}
}

// Ready reports whether a Design would currently be accepted.
func (m *Manager) Ready() bool {
	return m.Status().Phase.AcceptsCapture()
}

// publish is called by the device worker after every state change.
func (m *Manager) publish() {
	s := Status{
		Phase:          m.phase.State(),
		PostProcessing: m.caps.ManualPostProcessing,
		Capabilities:   m.caps,
		Rebuilding:     m.rebuilding,
		PreviewTargets: ports.Specs(m.preview),
		CaptureTargets: ports.Specs(m.capture),
		Driver:         m.drv.Stats(),
		Tuning:         m.tuning,
	}
	if m.device != nil {
		s.DeviceID = m.device.ID()
	}
	if m.run.ID != "" {
		run := m.run
		s.Run = &run
	}
	m.status.Store(&s)
}
