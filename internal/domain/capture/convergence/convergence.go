// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package convergence resolves device-determined ("auto") exposure fields
// by probing until focus and then exposure have settled.
package convergence

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/devcam/internal/domain/capture/lifecycle"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/fsm"
)

// State of the convergence machine.
type State string

const (
	StateNone               State = "NONE"
	StateWaitingForFocus    State = "WAITING_FOR_FOCUS"
	StateWaitingForExposure State = "WAITING_FOR_EXPOSURE"
	StateConverged          State = "CONVERGED"
)

// Event is derived from the AF/AE states of one probe result.
type Event string

const (
	EvFocusLocked       Event = "focus_locked"
	EvFocusPending      Event = "focus_pending"
	EvExposureConverged Event = "exposure_converged"
	EvExposurePending   Event = "exposure_pending"
)

// ErrNotWaiting is returned by Observe when nothing is left to resolve.
var ErrNotWaiting = errors.New("convergence: not waiting for a probe result")

// Policy bounds the probe loop. MaxProbes of zero means unbounded.
type Policy struct {
	MaxProbes int
}

// Step tells the driver what to do after a probe result.
type Step struct {
	// Converged means the burst may be submitted using Final.
	Converged bool
	Final     model.FrameMetadata
	// AFTrigger is the trigger of the next probe when not converged.
	AFTrigger model.AFTrigger
}

// Machine runs one convergence for one Design. It is not safe for
// concurrent use; the device worker drives it.
type Machine struct {
	m        *fsm.Machine[State, Event]
	focus    bool
	exposure bool
	policy   Policy
	probes   int
}

// New builds a machine whose initial state is derived from the Design.
func New(d model.Design, policy Policy) *Machine {
	focus, exposure := d.NeedsFocus(), d.NeedsExposure()
	initial := StateNone
	switch {
	case focus:
		initial = StateWaitingForFocus
	case exposure:
		initial = StateWaitingForExposure
	}

	afterFocus := StateConverged
	if exposure {
		afterFocus = StateWaitingForExposure
	}
	var edges []fsm.Transition[State, Event]
	if focus {
		edges = append(edges,
			fsm.Transition[State, Event]{From: StateWaitingForFocus, Event: EvFocusPending, To: StateWaitingForFocus},
			fsm.Transition[State, Event]{From: StateWaitingForFocus, Event: EvFocusLocked, To: afterFocus},
		)
	}
	if exposure {
		edges = append(edges,
			fsm.Transition[State, Event]{From: StateWaitingForExposure, Event: EvExposurePending, To: StateWaitingForExposure},
			fsm.Transition[State, Event]{From: StateWaitingForExposure, Event: EvExposureConverged, To: StateConverged},
		)
	}
	m, err := fsm.New(initial, edges)
	if err != nil {
		panic(fmt.Sprintf("convergence table: %v", err))
	}
	return &Machine{m: m, focus: focus, exposure: exposure, policy: policy}
}

// State returns the current state.
func (c *Machine) State() State { return c.m.State() }

// History returns the states visited, initial state first.
func (c *Machine) History() []State { return c.m.History() }

// Needed reports whether any probing is required at all.
func (c *Machine) Needed() bool { return c.State() != StateNone }

// NeedsFocus and NeedsExposure report what the Design asked to resolve.
func (c *Machine) NeedsFocus() bool    { return c.focus }
func (c *Machine) NeedsExposure() bool { return c.exposure }

// Probes returns the number of probes accounted so far.
func (c *Machine) Probes() int { return c.probes }

// CountProbe accounts one submitted probe against the retry policy.
func (c *Machine) CountProbe() error {
	if c.policy.MaxProbes > 0 && c.probes >= c.policy.MaxProbes {
		return lifecycle.NewReasonError(model.RConvergenceExhausted,
			fmt.Sprintf("no convergence after %d probes in %s", c.probes, c.State()), nil)
	}
	c.probes++
	return nil
}

// Observe feeds one probe result to the machine.
func (c *Machine) Observe(ctx context.Context, md model.FrameMetadata) (Step, error) {
	switch c.State() {
	case StateWaitingForFocus:
		trigger, locked := focusDecision(md.AFState)
		if !locked {
			if _, err := c.m.Fire(ctx, EvFocusPending); err != nil {
				return Step{}, err
			}
			return Step{AFTrigger: trigger}, nil
		}
		to, err := c.m.Fire(ctx, EvFocusLocked)
		if err != nil {
			return Step{}, err
		}
		if to == StateConverged {
			return Step{Converged: true, Final: md}, nil
		}
		// Exposure is judged on the same result that locked focus.
		return c.observeExposure(ctx, md)
	case StateWaitingForExposure:
		return c.observeExposure(ctx, md)
	default:
		return Step{}, fmt.Errorf("%w (state %s)", ErrNotWaiting, c.State())
	}
}

func (c *Machine) observeExposure(ctx context.Context, md model.FrameMetadata) (Step, error) {
	if md.AEState == model.AEConverged || md.AEState == model.AEFlashRequired {
		if _, err := c.m.Fire(ctx, EvExposureConverged); err != nil {
			return Step{}, err
		}
		return Step{Converged: true, Final: md}, nil
	}
	if _, err := c.m.Fire(ctx, EvExposurePending); err != nil {
		return Step{}, err
	}
	return Step{AFTrigger: model.AFTriggerIdle}, nil
}

// focusDecision maps an AF state to the trigger of the next probe, or
// reports that focus is locked.
func focusDecision(s model.AFState) (model.AFTrigger, bool) {
	switch s {
	case model.AFFocusedLocked:
		return "", true
	case model.AFNotFocusedLocked:
		// Locked out of focus: cancel so the search starts over.
		return model.AFTriggerCancel, false
	case model.AFPassiveFocused:
		return model.AFTriggerStart, false
	default:
		return model.AFTriggerIdle, false
	}
}
