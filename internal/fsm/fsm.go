// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm is a small strict finite-state machine runner.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when no edge exists for (state, event).
var ErrInvalidTransition = errors.New("fsm: invalid transition")

// Transition describes a single edge. Guard may reject the edge; Action runs
// the side effects of taking it.
type Transition[S ~string, E ~string] struct {
	From   S
	Event  E
	To     S
	Guard  func(ctx context.Context, from S, event E) error
	Action func(ctx context.Context, from S, to S, event E) error
}

// Machine applies events against a fixed transition table. Unknown
// transitions are errors. Every state entered is appended to the history.
type Machine[S ~string, E ~string] struct {
	mu      sync.Mutex
	state   S
	index   map[string]Transition[S, E]
	history []S
	observe func(from, to S, event E)
}

// Option configures a Machine.
type Option[S ~string, E ~string] func(*Machine[S, E])

// WithObserver registers fn to be called after every applied transition.
func WithObserver[S ~string, E ~string](fn func(from, to S, event E)) Option[S, E] {
	return func(m *Machine[S, E]) { m.observe = fn }
}

// New builds a machine starting in initial. Duplicate edges are rejected.
func New[S ~string, E ~string](initial S, transitions []Transition[S, E], opts ...Option[S, E]) (*Machine[S, E], error) {
	idx := make(map[string]Transition[S, E], len(transitions))
	for _, t := range transitions {
		k := key(t.From, t.Event)
		if _, exists := idx[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		idx[k] = t
	}
	m := &Machine[S, E]{state: initial, index: idx, history: []S{initial}}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Can reports whether event has an edge from the current state.
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.index[key(m.state, event)]
	return ok
}

// History returns a copy of the states entered, initial state first.
// Self-transitions are not recorded.
func (m *Machine[S, E]) History() []S {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]S, len(m.history))
	copy(out, m.history)
	return out
}

// Fire applies event. Guard and Action run outside the lock.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	m.mu.Lock()
	from := m.state
	t, ok := m.index[key(from, event)]
	m.mu.Unlock()
	if !ok {
		return from, fmt.Errorf("%w: state=%s event=%s", ErrInvalidTransition, from, event)
	}

	if t.Guard != nil {
		if err := t.Guard(ctx, from, event); err != nil {
			return from, err
		}
	}
	if t.Action != nil {
		if err := t.Action(ctx, from, t.To, event); err != nil {
			return from, err
		}
	}

	m.mu.Lock()
	if m.state != from {
		cur := m.state
		m.mu.Unlock()
		return cur, fmt.Errorf("concurrent transition detected: from=%s cur=%s event=%s", from, cur, event)
	}
	m.state = t.To
	if from != t.To {
		m.history = append(m.history, t.To)
	}
	observe := m.observe
	m.mu.Unlock()

	if observe != nil {
		observe(from, t.To, event)
	}
	return t.To, nil
}

func key[S ~string, E ~string](from S, event E) string {
	return string(from) + "|" + string(event)
}
