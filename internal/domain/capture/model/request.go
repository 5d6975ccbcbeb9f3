// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// RequestTag tells the manager how to route the events of a request.
type RequestTag string

const (
	TagPreview RequestTag = "preview"
	TagRestore RequestTag = "restore"
	TagProbe   RequestTag = "probe"
	TagStill   RequestTag = "still"
)

type AFMode string

const (
	AFModeOff               AFMode = "off"
	AFModeAuto              AFMode = "auto"
	AFModeContinuousPicture AFMode = "continuous_picture"
)

type AEMode string

const (
	AEModeOff AEMode = "off"
	AEModeOn  AEMode = "on"
)

type AFTrigger string

const (
	AFTriggerIdle   AFTrigger = "idle"
	AFTriggerStart  AFTrigger = "start"
	AFTriggerCancel AFTrigger = "cancel"
)

type AEPrecaptureTrigger string

const (
	AEPrecaptureIdle  AEPrecaptureTrigger = "idle"
	AEPrecaptureStart AEPrecaptureTrigger = "start"
)

// Request is one capture request. It is a value: builders return a new
// Request and never share the Targets backing array with their input.
type Request struct {
	Run          string
	Tag          RequestTag
	Index        int
	Targets      []TargetID
	AFMode       AFMode
	AEMode       AEMode
	AFTrigger    AFTrigger
	AEPrecapture AEPrecaptureTrigger
	AELock       bool
	Processing   ProcessingMode
	Manual       bool
	Settings     ExposureSettings
}

// PreviewRequest is the repeating steady-state request: AF/AE fully automatic.
func PreviewRequest(targets []TargetID) Request {
	return Request{
		Tag:          TagPreview,
		Targets:      cloneIDs(targets),
		AFMode:       AFModeContinuousPicture,
		AEMode:       AEModeOn,
		AFTrigger:    AFTriggerIdle,
		AEPrecapture: AEPrecaptureIdle,
	}
}

// RestoreRequest is the single request sent after a Design to unlock AE and
// cancel any pending focus trigger before preview resumes.
func RestoreRequest(targets []TargetID) Request {
	r := PreviewRequest(targets)
	r.Tag = TagRestore
	r.AFTrigger = AFTriggerCancel
	return r
}

// ProbeRequest is an auto-convergence probe delivered to the preview targets.
func ProbeRequest(run string, seq int, targets []TargetID, focus, exposure bool) Request {
	r := Request{
		Run:          run,
		Tag:          TagProbe,
		Index:        seq,
		Targets:      cloneIDs(targets),
		AFMode:       AFModeAuto,
		AEMode:       AEModeOn,
		AFTrigger:    AFTriggerIdle,
		AEPrecapture: AEPrecaptureIdle,
	}
	if focus {
		r.AFMode = AFModeContinuousPicture
	}
	if exposure {
		r.AEPrecapture = AEPrecaptureStart
	}
	return r
}

// WithAFTrigger returns a copy with the given AF trigger.
func (r Request) WithAFTrigger(t AFTrigger) Request {
	out := r.clone()
	out.AFTrigger = t
	return out
}

// WithAEPrecapture returns a copy with the given precapture trigger.
func (r Request) WithAEPrecapture(t AEPrecaptureTrigger) Request {
	out := r.clone()
	out.AEPrecapture = t
	return out
}

// WithIndex returns a copy carrying index i.
func (r Request) WithIndex(i int) Request {
	out := r.clone()
	out.Index = i
	return out
}

// StillRequest is a fully manual frame of a Design burst.
func StillRequest(run string, index int, targets []TargetID, s ExposureSettings, p ProcessingMode) Request {
	return Request{
		Run:          run,
		Tag:          TagStill,
		Index:        index,
		Targets:      cloneIDs(targets),
		AFMode:       AFModeOff,
		AEMode:       AEModeOff,
		AFTrigger:    AFTriggerIdle,
		AEPrecapture: AEPrecaptureIdle,
		Processing:   p,
		Manual:       true,
		Settings:     s,
	}
}

func (r Request) clone() Request {
	out := r
	out.Targets = cloneIDs(r.Targets)
	return out
}

func cloneIDs(ids []TargetID) []TargetID {
	if ids == nil {
		return nil
	}
	return append(make([]TargetID, 0, len(ids)), ids...)
}
