// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import "github.com/ManuGH/devcam/internal/fsm"

// Transition is a single allowed edge of the manager phase machine.
type Transition struct {
	From  Phase
	Event EventKind
	To    Phase
}

var transitionsTable = []Transition{
	{From: PhaseClosed, Event: EvOpened, To: PhaseOpened},

	// Rebuilds. Repeated requests while configuring are coalesced.
	{From: PhaseOpened, Event: EvRebuildRequested, To: PhaseConfiguring},
	{From: PhaseReady, Event: EvRebuildRequested, To: PhaseConfiguring},
	{From: PhaseFailed, Event: EvRebuildRequested, To: PhaseConfiguring},
	{From: PhaseConfiguring, Event: EvRebuildRequested, To: PhaseConfiguring},
	{From: PhaseConfiguring, Event: EvConfigured, To: PhaseReady},
	{From: PhaseConfiguring, Event: EvConfigureFailed, To: PhaseFailed},

	// Design execution
	{From: PhaseReady, Event: EvCaptureStarted, To: PhaseCapturing},
	{From: PhaseCapturing, Event: EvSequenceCompleted, To: PhaseCorrelating},
	{From: PhaseCapturing, Event: EvCaptureAborted, To: PhaseReady},
	{From: PhaseCorrelating, Event: EvCorrelationDone, To: PhaseReady},

	// Loss of the device
	{From: PhaseOpened, Event: EvDeviceLost, To: PhaseClosed},
	{From: PhaseConfiguring, Event: EvDeviceLost, To: PhaseClosed},
	{From: PhaseReady, Event: EvDeviceLost, To: PhaseClosed},
	{From: PhaseCapturing, Event: EvDeviceLost, To: PhaseClosed},
	{From: PhaseCorrelating, Event: EvDeviceLost, To: PhaseClosed},
	{From: PhaseFailed, Event: EvDeviceLost, To: PhaseClosed},

	// Explicit close
	{From: PhaseOpened, Event: EvClosed, To: PhaseClosed},
	{From: PhaseConfiguring, Event: EvClosed, To: PhaseClosed},
	{From: PhaseReady, Event: EvClosed, To: PhaseClosed},
	{From: PhaseCapturing, Event: EvClosed, To: PhaseClosed},
	{From: PhaseCorrelating, Event: EvClosed, To: PhaseClosed},
	{From: PhaseFailed, Event: EvClosed, To: PhaseClosed},
}

// TransitionFor returns the allowed transition for a given phase and event.
func TransitionFor(from Phase, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// NewMachine returns a phase machine starting closed. observe, if non-nil,
// is called after every applied transition.
func NewMachine(observe func(from, to Phase, ev EventKind)) *fsm.Machine[Phase, EventKind] {
	edges := make([]fsm.Transition[Phase, EventKind], 0, len(transitionsTable))
	for _, tr := range transitionsTable {
		edges = append(edges, fsm.Transition[Phase, EventKind]{From: tr.From, Event: tr.Event, To: tr.To})
	}
	var opts []fsm.Option[Phase, EventKind]
	if observe != nil {
		opts = append(opts, fsm.WithObserver(observe))
	}
	m, err := fsm.New(PhaseClosed, edges, opts...)
	if err != nil {
		// The table is static; a duplicate edge is a programming error.
		panic(err)
	}
	return m
}
