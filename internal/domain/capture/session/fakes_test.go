// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
)

type fakeTarget struct {
	spec  model.TargetSpec
	valid bool
}

func (t *fakeTarget) Spec() model.TargetSpec { return t.spec }
func (t *fakeTarget) Valid() bool            { return t.valid }

func target(id string) *fakeTarget {
	return &fakeTarget{spec: model.TargetSpec{ID: model.TargetID(id), Format: model.FormatYUV}, valid: true}
}

type fakeOpener struct {
	mu      sync.Mutex
	caps    model.Capabilities
	err     error
	devices []*fakeDevice
}

func (o *fakeOpener) Open(_ context.Context, id string, ev ports.Events) (ports.Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return nil, o.err
	}
	d := &fakeDevice{id: id, caps: o.caps, ev: ev}
	o.devices = append(o.devices, d)
	return d, nil
}

func (o *fakeOpener) device(t *testing.T) *fakeDevice {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.devices)
	return o.devices[len(o.devices)-1]
}

type fakeDevice struct {
	id   string
	caps model.Capabilities
	ev   ports.Events

	mu        sync.Mutex
	sessions  []*fakeSession
	closed    bool
	createErr error
}

func (d *fakeDevice) ID() string                       { return d.id }
func (d *fakeDevice) Capabilities() model.Capabilities { return d.caps }

func (d *fakeDevice) CreateSession(_ context.Context, targets []ports.Target) (ports.CaptureSession, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.createErr != nil {
		return nil, d.createErr
	}
	s := &fakeSession{id: fmt.Sprintf("%s-s%d", d.id, len(d.sessions)+1), targets: ports.IDs(targets)}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *fakeDevice) sessionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sessions)
}

func (d *fakeDevice) session(t *testing.T, i int) *fakeSession {
	t.Helper()
	require.Eventually(t, func() bool { return d.sessionCount() > i }, 2*time.Second, 2*time.Millisecond)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[i]
}

func (d *fakeDevice) configured(s *fakeSession) {
	d.ev.Session <- ports.SessionEvent{Kind: ports.SessionConfigured, SessionID: s.id}
}

func (d *fakeDevice) configureFailed(s *fakeSession) {
	d.ev.Session <- ports.SessionEvent{Kind: ports.SessionConfigureFailed, SessionID: s.id, Err: fmt.Errorf("bad surface")}
}

func (d *fakeDevice) capture(ev ports.CaptureEvent) {
	d.ev.Capture <- ev
}

type fakeSession struct {
	id      string
	targets []model.TargetID

	mu        sync.Mutex
	captures  []model.Request
	bursts    [][]model.Request
	repeating []model.Request
	stops     int
	closed    bool
}

func (s *fakeSession) ID() string { return s.id }

func (s *fakeSession) Capture(_ context.Context, req model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captures = append(s.captures, req)
	return nil
}

func (s *fakeSession) CaptureBurst(_ context.Context, reqs []model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bursts = append(s.bursts, reqs)
	return nil
}

func (s *fakeSession) SetRepeating(_ context.Context, req model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repeating = append(s.repeating, req)
	return nil
}

func (s *fakeSession) StopRepeating() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) snapshot() (captures []model.Request, bursts [][]model.Request, repeating []model.Request, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Request(nil), s.captures...),
		append([][]model.Request(nil), s.bursts...),
		append([]model.Request(nil), s.repeating...),
		s.closed
}

type recListener struct {
	mu           sync.Mutex
	ready        []bool
	deviceErrors []error
	auto         int
	started      []model.FrameID
	completed    []model.FrameMetadata
	failed       []error
	sequences    []model.RunInfo
	runDesigns   map[string]model.Design
	pairs        []model.Pair
	reports      []model.CorrelationReport
}

func (l *recListener) OnReady(pp bool) { l.mu.Lock(); l.ready = append(l.ready, pp); l.mu.Unlock() }
func (l *recListener) OnDeviceError(err error) {
	l.mu.Lock()
	l.deviceErrors = append(l.deviceErrors, err)
	l.mu.Unlock()
}
func (l *recListener) OnAutoResults(model.FrameMetadata) { l.mu.Lock(); l.auto++; l.mu.Unlock() }
func (l *recListener) OnCaptureStarted(id model.FrameID) {
	l.mu.Lock()
	l.started = append(l.started, id)
	l.mu.Unlock()
}
func (l *recListener) OnCaptureCompleted(md model.FrameMetadata) {
	l.mu.Lock()
	l.completed = append(l.completed, md)
	l.mu.Unlock()
}
func (l *recListener) OnCaptureFailed(err error) {
	l.mu.Lock()
	l.failed = append(l.failed, err)
	l.mu.Unlock()
}
func (l *recListener) OnSequenceCompleted(run model.RunInfo) {
	l.mu.Lock()
	l.sequences = append(l.sequences, run)
	l.mu.Unlock()
}
func (l *recListener) OnRunStarted(run model.RunInfo, d model.Design) {
	l.mu.Lock()
	if l.runDesigns == nil {
		l.runDesigns = make(map[string]model.Design)
	}
	l.runDesigns[run.ID] = d
	l.mu.Unlock()
}
func (l *recListener) OnPairAvailable(_ model.RunInfo, p model.Pair) {
	l.mu.Lock()
	l.pairs = append(l.pairs, p)
	l.mu.Unlock()
}
func (l *recListener) OnAllPairsReported(r model.CorrelationReport) {
	l.mu.Lock()
	l.reports = append(l.reports, r)
	l.mu.Unlock()
}

func (l *recListener) startedDesigns() map[string]model.Design {
	l.mu.Lock()
	defer l.mu.Unlock()
	return maps.Clone(l.runDesigns)
}

func (l *recListener) readyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ready)
}

func (l *recListener) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.deviceErrors)
}

func (l *recListener) lastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.deviceErrors) == 0 {
		return nil
	}
	return l.deviceErrors[len(l.deviceErrors)-1]
}

func (l *recListener) reportList() []model.CorrelationReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.CorrelationReport(nil), l.reports...)
}

func (l *recListener) pairCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pairs)
}

func (l *recListener) sequenceCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.sequences)
}

func (l *recListener) failedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failed)
}
