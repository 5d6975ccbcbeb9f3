// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session owns the device handle and drives capture sessions.
//
// All device state lives on one worker goroutine started by Run. Public
// methods post typed commands to it and wait for the reply; device
// callbacks arrive on typed channels read by the same goroutine. Image
// buffers are recorded by a second worker so that they never wait on
// metadata handling.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/devcam/internal/domain/capture/convergence"
	"github.com/ManuGH/devcam/internal/domain/capture/correlator"
	"github.com/ManuGH/devcam/internal/domain/capture/driver"
	"github.com/ManuGH/devcam/internal/domain/capture/lifecycle"
	"github.com/ManuGH/devcam/internal/domain/capture/model"
	"github.com/ManuGH/devcam/internal/domain/capture/ports"
	"github.com/ManuGH/devcam/internal/fsm"
	dlog "github.com/ManuGH/devcam/internal/log"
	"github.com/ManuGH/devcam/internal/metrics"
)

const (
	DefaultOpenTimeout    = 2500 * time.Millisecond
	DefaultRebuildTimeout = 10 * time.Second
	defaultQueueSize      = 64
)

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("capture manager already running")

// Config tunes a Manager. Zero values select the defaults.
type Config struct {
	OpenTimeout        time.Duration
	RebuildTimeout     time.Duration
	CorrelationTimeout time.Duration
	Convergence        convergence.Policy
	QueueSize          int
}

// Tuning holds the knobs that may change while the manager runs.
type Tuning struct {
	CorrelationTimeout time.Duration
	MaxProbes          int
}

// Deps are the collaborators of a Manager. Opener is required; a nil
// Listener or Pairs falls back to ports.LogListener.
type Deps struct {
	Opener     ports.DeviceOpener
	Listener   ports.Listener
	Pairs      ports.PairHandler
	Correlator *correlator.Correlator
	Driver     *driver.Driver
}

type command struct {
	name  string
	fn    func(ctx context.Context) error
	reply chan error
}

type correlationResult struct {
	run    model.RunInfo
	report model.CorrelationReport
	err    error
}

// Manager is the session lifecycle manager for one device.
type Manager struct {
	cfg      Config
	opener   ports.DeviceOpener
	listener ports.Listener
	pairs    ports.PairHandler
	corr     *correlator.Correlator
	drv      *driver.Driver
	logger   zerolog.Logger
	autoLog  *rate.Sometimes

	gate          chan struct{}
	cmds          chan command
	deviceEvents  chan ports.DeviceEvent
	sessionEvents chan ports.SessionEvent
	captureEvents chan ports.CaptureEvent
	buffers       chan model.FrameBuffer
	corrDone      chan correlationResult

	running    atomic.Bool
	started    chan struct{}
	quit       chan struct{}
	stopped    chan struct{}
	wg         sync.WaitGroup
	status     atomic.Pointer[Status]
	captureSet atomic.Pointer[map[model.TargetID]struct{}]

	// Owned by the device worker.
	phase           *fsm.Machine[lifecycle.Phase, lifecycle.EventKind]
	device          ports.Device
	caps            model.Capabilities
	session         ports.CaptureSession
	pending         ports.CaptureSession
	preview         []ports.Target
	capture         []ports.Target
	rebuilding      bool
	superseded      bool
	deferred        bool
	rebuildTimer    *time.Timer
	rebuildDeadline <-chan time.Time
	run             model.RunInfo
	perExposure     int
	tuning          Tuning
}

// New wires a Manager. Call Run before using it.
func New(cfg Config, deps Deps) *Manager {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = DefaultOpenTimeout
	}
	if cfg.RebuildTimeout <= 0 {
		cfg.RebuildTimeout = DefaultRebuildTimeout
	}
	if cfg.CorrelationTimeout <= 0 {
		cfg.CorrelationTimeout = correlator.DefaultTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	logger := dlog.WithComponent("capture")
	m := &Manager{
		cfg:      cfg,
		opener:   deps.Opener,
		listener: deps.Listener,
		pairs:    deps.Pairs,
		corr:     deps.Correlator,
		drv:      deps.Driver,
		logger:   logger,
		autoLog:  &rate.Sometimes{Interval: 5 * time.Second},

		gate:          make(chan struct{}, 1),
		cmds:          make(chan command),
		deviceEvents:  make(chan ports.DeviceEvent, cfg.QueueSize),
		sessionEvents: make(chan ports.SessionEvent, cfg.QueueSize),
		captureEvents: make(chan ports.CaptureEvent, cfg.QueueSize),
		buffers:       make(chan model.FrameBuffer, cfg.QueueSize),
		corrDone:      make(chan correlationResult, 1),
		started:       make(chan struct{}),
		quit:          make(chan struct{}),
		stopped:       make(chan struct{}),

		tuning: Tuning{CorrelationTimeout: cfg.CorrelationTimeout, MaxProbes: cfg.Convergence.MaxProbes},
	}
	if m.listener == nil {
		m.listener = ports.LogListener{Logger: logger}
	}
	if m.pairs == nil {
		m.pairs = ports.LogListener{Logger: logger}
	}
	if m.corr == nil {
		m.corr = correlator.New()
	}
	if m.drv == nil {
		m.drv = driver.New(cfg.Convergence)
	}
	m.phase = lifecycle.NewMachine(m.observePhase)
	m.publish()
	return m
}

// Run processes commands and device events until ctx ends. On return the
// device is closed and every worker goroutine has exited.
func (m *Manager) Run(ctx context.Context) error {
	if m.opener == nil {
		return errors.New("capture manager: device opener is required")
	}
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(m.stopped)
	close(m.started)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.bufferLoop(ctx)
	}()

	m.logger.Info().Str(dlog.FieldEvent, "capture.manager_started").Msg("capture manager started")
	for {
		select {
		case <-ctx.Done():
			close(m.quit)
			m.shutdown()
			m.wg.Wait()
			m.logger.Info().Str(dlog.FieldEvent, "capture.manager_stopped").Msg("capture manager stopped")
			return nil
		case cmd := <-m.cmds:
			err := cmd.fn(ctx)
			m.publish()
			cmd.reply <- err
			continue
		case ev := <-m.deviceEvents:
			m.onDeviceEvent(ctx, ev)
		case ev := <-m.sessionEvents:
			m.onSessionEvent(ctx, ev)
		case ev := <-m.captureEvents:
			m.onCaptureEvent(ctx, ev)
		case res := <-m.corrDone:
			m.onCorrelationDone(ctx, res)
		case <-m.rebuildDeadline:
			m.onRebuildTimeout(ctx)
		}
		m.publish()
	}
}

// Started is closed once Run accepts commands.
func (m *Manager) Started() <-chan struct{} { return m.started }

// Done is closed when Run has returned.
func (m *Manager) Done() <-chan struct{} { return m.stopped }

// do runs fn on the device worker and returns its result.
func (m *Manager) do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if !m.running.Load() {
		return lifecycle.NewReasonError(model.RClosed, "manager not running", nil)
	}
	cmd := command{name: name, fn: fn, reply: make(chan error, 1)}
	select {
	case m.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return lifecycle.NewReasonError(model.RClosed, name, nil)
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopped:
		return lifecycle.NewReasonError(model.RClosed, name, nil)
	}
}

// acquireGate serializes Open and Close. Waiting is bounded by OpenTimeout.
func (m *Manager) acquireGate(ctx context.Context) error {
	timer := time.NewTimer(m.cfg.OpenTimeout)
	defer timer.Stop()
	select {
	case m.gate <- struct{}{}:
		return nil
	case <-timer.C:
		return lifecycle.NewReasonError(model.RGateTimeout, "open/close gate busy", nil)
	case <-ctx.Done():
		return lifecycle.NewReasonError(model.RGateTimeout, "open/close gate", ctx.Err())
	}
}

func (m *Manager) releaseGate() {
	<-m.gate
}

func (m *Manager) events() ports.Events {
	return ports.Events{Device: m.deviceEvents, Session: m.sessionEvents, Capture: m.captureEvents}
}

func (m *Manager) fire(ctx context.Context, ev lifecycle.EventKind) {
	if _, err := m.phase.Fire(ctx, ev); err != nil {
		m.logger.Error().Err(err).Str(dlog.FieldEvent, string(ev)).Msg("illegal phase transition")
	}
}

func (m *Manager) observePhase(from, to lifecycle.Phase, ev lifecycle.EventKind) {
	if from == to {
		return
	}
	metrics.ObserveTransition(string(from), string(to))
	m.logger.Debug().
		Str(dlog.FieldOldState, string(from)).
		Str(dlog.FieldNewState, string(to)).
		Str(dlog.FieldEvent, string(ev)).
		Msg("phase changed")
}

// shutdown releases the device when Run ends.
func (m *Manager) shutdown() {
	if m.device != nil {
		m.teardown(context.Background(), lifecycle.EvClosed)
	}
	m.preview, m.capture = nil, nil
	m.publish()
}
